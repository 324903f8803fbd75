package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNoEncontrado = errors.New("recurso no encontrado")
	ErrValidacion   = errors.New("entrada inválida")
	ErrNoAutorizado = errors.New("no autorizado")
	ErrConflicto    = errors.New("conflicto con el estado actual")

	// ErrSecuenciaDesincronizada: el contador local y el de ARCA divergieron y
	// la resincronización automática no alcanzó. Requiere intervención manual;
	// nunca se reintenta solo.
	ErrSecuenciaDesincronizada = errors.New("numeración local desincronizada con ARCA")

	// ErrARCANoDisponible: se agotaron los reintentos ante fallas transitorias
	// del WS. El número reservado no fue consumido.
	ErrARCANoDisponible = errors.New("servicio ARCA no disponible")

	// ErrOrdenEnProceso: otra invocación ya está facturando la misma orden.
	ErrOrdenEnProceso = errors.New("la orden ya está siendo facturada")
)

// Observacion es un mensaje estructurado devuelto por ARCA en un rechazo.
type Observacion struct {
	Codigo  int
	Mensaje string
}

// RechazoARCA: el WS rechazó la solicitud de CAE con motivos estructurados.
// Terminal: no se reintenta y los mensajes se preservan textuales para mostrar.
type RechazoARCA struct {
	Observaciones []Observacion
}

func (e *RechazoARCA) Error() string {
	if len(e.Observaciones) == 0 {
		return "ARCA rechazó el comprobante"
	}
	msgs := make([]string, 0, len(e.Observaciones))
	for _, o := range e.Observaciones {
		msgs = append(msgs, fmt.Sprintf("[%d] %s", o.Codigo, o.Mensaje))
	}
	return "ARCA rechazó el comprobante: " + strings.Join(msgs, "; ")
}

// TieneCodigo indica si el rechazo incluye una observación con ese código.
func (e *RechazoARCA) TieneCodigo(codigo int) bool {
	for _, o := range e.Observaciones {
		if o.Codigo == codigo {
			return true
		}
	}
	return false
}

// PersistenciaPostCAE: ARCA ya emitió el CAE pero la factura no pudo guardarse.
// El número fue consumido y el documento legal existe; se expone todo el
// contexto para conciliación manual. Jamás se reintenta (riesgo de doble
// autorización).
type PersistenciaPostCAE struct {
	TipoComprobante int
	PuntoVenta      int
	Numero          int64
	CAE             string
	Causa           error
}

func (e *PersistenciaPostCAE) Error() string {
	return fmt.Sprintf(
		"factura autorizada por ARCA (tipo %d, PV %04d, nro %08d, CAE %s) pero la persistencia falló: %v",
		e.TipoComprobante, e.PuntoVenta, e.Numero, e.CAE, e.Causa,
	)
}

func (e *PersistenciaPostCAE) Unwrap() error { return e.Causa }
