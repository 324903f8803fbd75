package dto

import "github.com/shopspring/decimal"

// EmitirFacturaRequest body para POST /api/facturas.
type EmitirFacturaRequest struct {
	ClienteID string `json:"cliente_id,omitempty"`

	// Datos del receptor cuando no hay cliente guardado.
	RazonSocial  string `json:"razon_social,omitempty"`
	CUIT         string `json:"cuit,omitempty"`
	CondicionIVA string `json:"condicion_iva,omitempty"`

	// TipoComprobante opcional; si va en cero se resuelve por la condición
	// del receptor.
	TipoComprobante int `json:"tipo_comprobante,omitempty"`
	Concepto        int `json:"concepto,omitempty"` // default: productos

	Items []ItemFacturaRequest `json:"items"`

	// TotalDeclarado opcional: si viene, se concilia contra el total calculado.
	TotalDeclarado *decimal.Decimal `json:"total_declarado,omitempty"`
}

// ItemFacturaRequest línea de factura.
type ItemFacturaRequest struct {
	Descripcion    string          `json:"descripcion"`
	Cantidad       decimal.Decimal `json:"cantidad"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario"`
	AlicuotaIVA    int             `json:"alicuota_iva,omitempty"` // default: 21%
}

// FacturaResponse factura en respuestas.
type FacturaResponse struct {
	ID              string                `json:"id"`
	ClienteID       string                `json:"cliente_id,omitempty"`
	OrdenID         string                `json:"orden_id,omitempty"`
	TipoComprobante int                   `json:"tipo_comprobante"`
	PuntoVenta      int                   `json:"punto_venta"`
	Numero          int64                 `json:"numero"`
	NumeroCompleto  string                `json:"numero_completo"` // PPPP-NNNNNNNN
	Fecha           string                `json:"fecha"`
	CAE             string                `json:"cae,omitempty"`
	VencimientoCAE  string                `json:"vencimiento_cae,omitempty"`
	Estado          string                `json:"estado"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	IVA             decimal.Decimal       `json:"iva"`
	Total           decimal.Decimal       `json:"total"`
	Observaciones   string                `json:"observaciones,omitempty"`
	Items           []ItemFacturaResponse `json:"items,omitempty"`
}

// ItemFacturaResponse línea de detalle en la respuesta.
type ItemFacturaResponse struct {
	ID             string          `json:"id"`
	Descripcion    string          `json:"descripcion"`
	Cantidad       decimal.Decimal `json:"cantidad"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario"`
	AlicuotaIVA    int             `json:"alicuota_iva"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}
