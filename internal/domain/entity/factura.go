package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de una factura.
// Solo se persisten facturas autorizadas: "pendiente" existe únicamente en
// memoria durante la emisión; "anulada" la marca una nota de crédito (flujo
// manual, fuera de este servicio).
const (
	EstadoPendiente  = "pendiente"
	EstadoAutorizada = "autorizada"
	EstadoRechazada  = "rechazada"
	EstadoAnulada    = "anulada"
)

// Factura representa un comprobante fiscal autorizado por ARCA.
type Factura struct {
	ID        string
	ClienteID string
	OrdenID   string // orden Tiendanube de origen; vacío si fue emisión manual

	// Identidad fiscal del comprobante. Numero es inmutable una vez persistido.
	TipoComprobante int
	PuntoVenta      int
	Numero          int64
	Fecha           time.Time

	// Autorización ARCA. CAE se asigna exactamente una vez.
	CAE            string
	VencimientoCAE time.Time
	Estado         string

	// Snapshot fiscal del receptor al momento de emitir (independiente del
	// CRUD de clientes, que puede cambiar después).
	ReceptorRazonSocial  string
	ReceptorCUIT         string
	ReceptorCondicionIVA string

	// Montos (redondeados half-even a 2 decimales al persistir).
	Subtotal decimal.Decimal
	IVA21    decimal.Decimal
	IVA105   decimal.Decimal
	IVA27    decimal.Decimal
	Total    decimal.Decimal

	Concepto      int // 1=Productos, 2=Servicios, 3=Productos y Servicios
	Observaciones string

	CreatedAt time.Time
}

// NumeroCompleto devuelve el número de comprobante con formato PPPP-NNNNNNNN.
func (f *Factura) NumeroCompleto() string {
	return fmt.Sprintf("%04d-%08d", f.PuntoVenta, f.Numero)
}

// ItemFactura es una línea de detalle de la factura.
type ItemFactura struct {
	ID             string
	FacturaID      string
	Descripcion    string
	Cantidad       decimal.Decimal
	PrecioUnitario decimal.Decimal
	AlicuotaIVA    int // código ARCA: 3=0%, 4=10.5%, 5=21%, 6=27%
	Subtotal       decimal.Decimal
}
