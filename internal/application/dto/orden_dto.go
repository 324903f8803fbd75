package dto

// FacturarOrdenRequest body para POST /api/ordenes/:id/facturar.
// El override de receptor reemplaza los datos de facturación de la orden
// (caso típico: el comprador pide factura A con su CUIT después de comprar).
type FacturarOrdenRequest struct {
	RazonSocial  string `json:"razon_social,omitempty"`
	CUIT         string `json:"cuit,omitempty"`
	CondicionIVA string `json:"condicion_iva,omitempty"`

	// TipoComprobante opcional fuerza la letra (ej: 1 para Factura A).
	TipoComprobante int `json:"tipo_comprobante,omitempty"`
}

// OrdenFacturadaResponse estado de conciliación de una orden.
type OrdenFacturadaResponse struct {
	OrdenID     string `json:"orden_id"`
	NumeroOrden string `json:"numero_orden,omitempty"`
	Estado      string `json:"estado"`
	FacturaID   string `json:"factura_id,omitempty"`
	UltimoError string `json:"ultimo_error,omitempty"`
	Intentos    int    `json:"intentos"`
}

// WebhookTiendanube payload de los webhooks order/created y order/paid.
type WebhookTiendanube struct {
	StoreID int64  `json:"store_id"`
	Event   string `json:"event"`
	ID      int64  `json:"id"`
}
