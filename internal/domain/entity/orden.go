package entity

import "time"

// Estados de una orden frente a la facturación.
const (
	OrdenEnProceso = "en_proceso" // marcador in-flight: hay una emisión en curso
	OrdenFacturada = "facturada"
	OrdenConError  = "error" // la emisión falló; reintentable

	// OrdenConciliacionPendiente: hay un CAE emitido pero la factura local no
	// se pudo guardar. Terminal: reintentar emitiría un segundo comprobante,
	// solo se sale conciliando a mano.
	OrdenConciliacionPendiente = "conciliacion_pendiente"
)

// OrdenFacturadaLink vincula una orden de Tiendanube con su factura. Hay a lo sumo
// una fila no fallida por orden: esta tabla es la única fuente de la garantía
// de facturación exactamente-una-vez frente a webhooks duplicados.
type OrdenFacturadaLink struct {
	ID          string
	OrdenID     string // id de la orden en Tiendanube, único
	NumeroOrden string // número visible de la orden (para observaciones)
	FacturaID   string // vacío mientras está en proceso o con error
	Estado      string
	UltimoError string
	Intentos    int

	// Override opcional del receptor, usado en lugar de los datos de la orden.
	OverrideRazonSocial  string
	OverrideCUIT         string
	OverrideCondicionIVA string

	CreatedAt time.Time
	UpdatedAt time.Time
}
