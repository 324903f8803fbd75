package entity

import "time"

// ContadorSecuencia guarda el último número autorizado por ARCA para un
// (tipo de comprobante, punto de venta). Lo muta únicamente el coordinador de
// secuencia bajo exclusión mutua; nunca decrece.
type ContadorSecuencia struct {
	TipoComprobante int
	PuntoVenta      int
	UltimoNumero    int64
	ActualizadoEn   time.Time
}
