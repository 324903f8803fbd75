package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// EmisorConfig parámetros fiscales del emisor.
type EmisorConfig struct {
	PuntoVenta     int
	Monotributista bool
}

// PedidoEmision es la entrada del caso de uso de emisión, ya desacoplada del
// transporte (la arman los handlers HTTP y el conciliador de órdenes).
type PedidoEmision struct {
	Receptor  arca.Receptor
	ClienteID string
	OrdenID   string

	// TipoComprobante opcional: en cero se resuelve por la condición del
	// receptor.
	TipoComprobante int
	Concepto        int
	Items           []arca.ItemCalculo

	// TotalDeclarado opcional: total informado por el caller para conciliar
	// contra el calculado.
	TotalDeclarado *decimal.Decimal
}

// EmisorFacturas orquesta la emisión de un comprobante:
//
//	receptor → tipo de comprobante → totales → reserva de número →
//	solicitud de CAE → persistencia → confirmación del número
//
// La reserva retiene el lock de la serie durante todo el ciclo; el lock se
// suelta recién al confirmar (número consumido por el WS) o abandonar (el WS
// no lo registró). Una vez despachada la solicitud al WS, la cancelación del
// context del caller ya no interrumpe el ciclo: abortar ahí dejaría un CAE
// emitido sin rastro local.
type EmisorFacturas struct {
	facturas    repository.FacturaRepository
	secuencias  *CoordinadorSecuencia
	autorizador AutorizadorARCA
	cfg         EmisorConfig
	log         *logger.Logger
}

// NewEmisorFacturas construye el caso de uso de emisión.
func NewEmisorFacturas(
	facturas repository.FacturaRepository,
	secuencias *CoordinadorSecuencia,
	autorizador AutorizadorARCA,
	cfg EmisorConfig,
	log *logger.Logger,
) *EmisorFacturas {
	return &EmisorFacturas{
		facturas:    facturas,
		secuencias:  secuencias,
		autorizador: autorizador,
		cfg:         cfg,
		log:         log,
	}
}

// Emitir ejecuta el ciclo completo y devuelve la factura autorizada.
//
// Errores relevantes para el caller:
//   - domain.ErrValidacion: entrada inválida; nada se emitió.
//   - *domain.RechazoARCA: el organismo rechazó el comprobante (terminal).
//   - domain.ErrARCANoDisponible: falla transitoria agotados los reintentos;
//     seguro reintentar más tarde.
//   - *domain.PersistenciaPostCAE: el CAE existe pero la factura no se pudo
//     guardar; requiere conciliación, jamás reemisión.
func (e *EmisorFacturas) Emitir(ctx context.Context, pedido *PedidoEmision) (*entity.Factura, error) {
	receptor := pedido.Receptor.Saneado()

	tipo, err := arca.ElegirComprobante(pedido.TipoComprobante, receptor, e.cfg.Monotributista)
	if err != nil {
		return nil, err
	}

	concepto := pedido.Concepto
	if concepto == 0 {
		concepto = arca.ConceptoProductos
	}
	if !arca.ConceptoValido(concepto) {
		return nil, fmt.Errorf("%w: concepto %d desconocido", domain.ErrValidacion, concepto)
	}

	items := make([]arca.ItemCalculo, len(pedido.Items))
	for i, item := range pedido.Items {
		if item.Alicuota == 0 {
			item.Alicuota = arca.Alicuota21
		}
		items[i] = item
	}

	totales, err := arca.CalcularTotales(items, tipo)
	if err != nil {
		return nil, err
	}
	if pedido.TotalDeclarado != nil {
		if err := totales.ValidarTotalDeclarado(*pedido.TotalDeclarado); err != nil {
			return nil, err
		}
	}

	reserva, err := e.secuencias.Reservar(ctx, tipo, e.cfg.PuntoVenta)
	if err != nil {
		return nil, err
	}
	defer reserva.Abandonar() // no-op si ya se confirmó

	fecha := time.Now()
	solicitud := e.armarSolicitud(reserva, receptor, totales, concepto, fecha)

	// Última oportunidad de abortar: con el context ya cancelado no se envía
	// nada y el defer abandona la reserva sin consumir el número.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("emisión cancelada antes del envío: %w", err)
	}

	// A partir de acá la cancelación del caller no corta el ciclo; los
	// timeouts por intento los maneja el autorizador.
	submitCtx := context.WithoutCancel(ctx)

	resultado, err := e.autorizador.SolicitarCAE(submitCtx, solicitud)
	if errors.Is(err, domain.ErrSecuenciaDesincronizada) {
		// Otro emisor avanzó la serie (típico: facturación manual desde el
		// portal). Un único intento de resincronización; si persiste, es
		// intervención manual.
		if rerr := reserva.Resincronizar(submitCtx); rerr != nil {
			return nil, rerr
		}
		solicitud.Numero = reserva.Numero
		resultado, err = e.autorizador.SolicitarCAE(submitCtx, solicitud)
		if errors.Is(err, domain.ErrSecuenciaDesincronizada) {
			return nil, err
		}
	}
	if err != nil {
		var rechazo *domain.RechazoARCA
		if errors.As(err, &rechazo) {
			// El WS no registra comprobantes rechazados: el número sigue
			// libre y la serie queda donde estaba.
			e.log.Info().
				Int("tipo_comprobante", tipo).
				Int64("numero", reserva.Numero).
				Str("motivos", rechazo.Error()).
				Msg("comprobante rechazado por ARCA")
		}
		return nil, err
	}

	if resultado.Reutilizado {
		// El WS ya tenía autorizado este número (reenvío tras una falla a
		// mitad de camino). Si la factura local existe, la devolvemos; si no,
		// la reconstruimos con el CAE recuperado.
		if existente, ferr := e.facturas.ObtenerPorNumero(submitCtx, tipo, e.cfg.PuntoVenta, reserva.Numero); ferr == nil {
			if cerr := reserva.Confirmar(submitCtx); cerr != nil {
				e.log.Warn().Err(cerr).Msg("no se pudo persistir el contador tras reutilizar CAE")
			}
			return existente, nil
		}
	}

	factura, itemsEntidad := e.armarFactura(pedido, receptor, totales, tipo, concepto, reserva.Numero, fecha, resultado)

	if perr := e.facturas.Crear(submitCtx, factura, itemsEntidad); perr != nil {
		// El CAE ya existe: el número está consumido sí o sí. Confirmamos la
		// serie y devolvemos el contexto completo para conciliar a mano.
		if cerr := reserva.Confirmar(submitCtx); cerr != nil {
			e.log.Error().Err(cerr).Msg("tampoco se pudo persistir el contador tras fallar la factura")
		}
		e.log.Error().
			Err(perr).
			Str("cae", resultado.CAE).
			Str("numero_completo", factura.NumeroCompleto()).
			Msg("CAE emitido pero la factura no se pudo guardar")
		return nil, &domain.PersistenciaPostCAE{
			TipoComprobante: tipo,
			PuntoVenta:      e.cfg.PuntoVenta,
			Numero:          reserva.Numero,
			CAE:             resultado.CAE,
			Causa:           perr,
		}
	}

	if cerr := reserva.Confirmar(submitCtx); cerr != nil {
		// La factura ya está guardada; el contador se recupera en la próxima
		// sincronización.
		e.log.Warn().Err(cerr).Msg("factura guardada pero el contador no se pudo persistir")
	}

	e.log.Info().
		Str("factura_id", factura.ID).
		Str("numero_completo", factura.NumeroCompleto()).
		Str("cae", factura.CAE).
		Str("total", factura.Total.StringFixed(2)).
		Msg("factura autorizada")

	return factura, nil
}

// armarSolicitud traduce los totales al formato del WS. Para letra C el IVA
// va embebido: ImpNeto = ImpTotal, ImpIVA = 0 y sin detalle de alícuotas.
func (e *EmisorFacturas) armarSolicitud(
	reserva *Reserva,
	receptor arca.Receptor,
	totales *arca.Totales,
	concepto int,
	fecha time.Time,
) *SolicitudCAE {
	subtotal, totalIVA, total := totales.Redondeados()
	tipoDoc, nroDoc := arca.ElegirDocReceptor(receptor, total)

	s := &SolicitudCAE{
		TipoComprobante:      reserva.TipoComprobante,
		PuntoVenta:           reserva.PuntoVenta,
		Numero:               reserva.Numero,
		Concepto:             concepto,
		Fecha:                fecha,
		TipoDoc:              tipoDoc,
		NroDoc:               nroDoc,
		CondicionIVAReceptor: arca.CodigoCondicionIVA(receptor.CondicionIVA),
		ImpTotal:             total,
	}
	if totales.Discriminado {
		s.ImpNeto = subtotal
		s.ImpIVA = totalIVA
		s.DetalleIVA = totales.DetalleIVA()
	} else {
		s.ImpNeto = total
		s.ImpIVA = decimal.Zero
	}
	return s
}

func (e *EmisorFacturas) armarFactura(
	pedido *PedidoEmision,
	receptor arca.Receptor,
	totales *arca.Totales,
	tipo, concepto int,
	numero int64,
	fecha time.Time,
	resultado *ResultadoCAE,
) (*entity.Factura, []*entity.ItemFactura) {
	subtotal, _, total := totales.Redondeados()

	factura := &entity.Factura{
		ID:                   uuid.New().String(),
		ClienteID:            pedido.ClienteID,
		OrdenID:              pedido.OrdenID,
		TipoComprobante:      tipo,
		PuntoVenta:           e.cfg.PuntoVenta,
		Numero:               numero,
		Fecha:                fecha,
		CAE:                  resultado.CAE,
		VencimientoCAE:       resultado.Vencimiento,
		Estado:               entity.EstadoAutorizada,
		ReceptorRazonSocial:  receptor.RazonSocial,
		ReceptorCUIT:         receptor.CUIT,
		ReceptorCondicionIVA: receptor.CondicionIVA,
		Subtotal:             subtotal,
		IVA21:                totales.IVA(arca.Alicuota21).RoundBank(2),
		IVA105:               totales.IVA(arca.Alicuota105).RoundBank(2),
		IVA27:                totales.IVA(arca.Alicuota27).RoundBank(2),
		Total:                total,
		Concepto:             concepto,
		CreatedAt:            time.Now(),
	}

	items := make([]*entity.ItemFactura, len(pedido.Items))
	for i, item := range pedido.Items {
		alicuota := item.Alicuota
		if alicuota == 0 {
			alicuota = arca.Alicuota21
		}
		items[i] = &entity.ItemFactura{
			ID:             uuid.New().String(),
			FacturaID:      factura.ID,
			Descripcion:    item.Descripcion,
			Cantidad:       item.Cantidad,
			PrecioUnitario: item.PrecioUnitario,
			AlicuotaIVA:    alicuota,
			Subtotal:       item.Cantidad.Mul(item.PrecioUnitario).RoundBank(2),
		}
	}
	return factura, items
}
