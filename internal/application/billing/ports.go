package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
)

// SolicitudCAE es el pedido de autorización de un comprobante ya numerado.
type SolicitudCAE struct {
	TipoComprobante int
	PuntoVenta      int
	Numero          int64
	Concepto        int
	Fecha           time.Time

	// Receptor según tablas ARCA.
	TipoDoc              int
	NroDoc               int64
	CondicionIVAReceptor int // código RG 5616

	// Importes redondeados a 2 decimales. Para letra C: ImpNeto = ImpTotal
	// e ImpIVA = 0.
	ImpNeto    decimal.Decimal
	ImpIVA     decimal.Decimal
	ImpTotal   decimal.Decimal
	DetalleIVA []arca.DetalleAlicuota
}

// ResultadoCAE es la autorización obtenida del organismo.
type ResultadoCAE struct {
	CAE         string
	Vencimiento time.Time
	Numero      int64

	// Reutilizado indica que el comprobante ya estaba autorizado con este
	// número (reenvío detectado por el WS) y se recuperó el CAE existente.
	Reutilizado bool
}

// AutorizadorARCA es el puerto hacia el WS de facturación electrónica.
//
// SolicitarCAE distingue tres desenlaces:
//   - autorizado: (*ResultadoCAE, nil)
//   - rechazado por el organismo: (nil, *domain.RechazoARCA). Terminal: el WS
//     no registra comprobantes rechazados, así que el número NO se consume
//   - falla transitoria: (nil, err) envolviendo domain.ErrARCANoDisponible —
//     el comprobante pudo NO haberse registrado
//   - numeración desfasada: (nil, domain.ErrSecuenciaDesincronizada)
type AutorizadorARCA interface {
	// UltimoAutorizado consulta el último número autorizado de la serie.
	UltimoAutorizado(ctx context.Context, puntoVenta, tipoComprobante int) (int64, error)

	SolicitarCAE(ctx context.Context, solicitud *SolicitudCAE) (*ResultadoCAE, error)
}
