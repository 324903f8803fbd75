package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// OrdenTienda es una orden de Tiendanube ya normalizada para facturar.
type OrdenTienda struct {
	ID     string
	Numero string
	Total  decimal.Decimal

	Receptor arca.Receptor
	Items    []arca.ItemCalculo
}

// ClienteTienda es el puerto hacia la API de Tiendanube.
type ClienteTienda interface {
	ObtenerOrden(ctx context.Context, ordenID string) (*OrdenTienda, error)
}

// Emisor es el puerto hacia el caso de uso de emisión.
type Emisor interface {
	Emitir(ctx context.Context, pedido *billing.PedidoEmision) (*entity.Factura, error)
}

// Override reemplaza los datos fiscales del receptor que trae la orden
// (el comprador pidió factura A con su CUIT después de comprar).
// TipoComprobante opcional fuerza la letra; en cero se resuelve por la
// condición del receptor.
type Override struct {
	RazonSocial     string
	CUIT            string
	CondicionIVA    string
	TipoComprobante int
}

func (o *Override) vacio() bool {
	return o == nil || (o.RazonSocial == "" && o.CUIT == "" && o.CondicionIVA == "")
}

// Conciliador garantiza a-lo-sumo-una-factura por orden de Tiendanube frente
// a webhooks duplicados, reintentos y llamadas manuales concurrentes.
//
// Dos barreras, en orden:
//  1. Lock en memoria por orden: el segundo caller del mismo proceso espera a
//     que el primero termine y recibe la misma factura.
//  2. Reclamo en DB (insert condicional del marcador en_proceso): protege
//     contra otras réplicas del servicio.
type Conciliador struct {
	tienda   ClienteTienda
	emisor   Emisor
	ordenes  repository.OrdenFacturadaRepository
	facturas repository.FacturaRepository
	clientes repository.ClienteRepository // opcional: vincula facturas a clientes por CUIT
	log      *logger.Logger

	mu      sync.Mutex
	enCurso map[string]*ordenEnCurso
}

// ordenEnCurso es el lock en memoria de una orden más la cuenta de
// interesados (titular + esperas). La entrada del mapa vive mientras la
// cuenta sea mayor a cero; el último en soltar la borra.
type ordenEnCurso struct {
	lock        chan struct{}
	interesados int
}

// NewConciliador construye el conciliador. clientes puede ser nil: la
// vinculación por CUIT es mejor-esfuerzo, la emisión no depende de ella.
func NewConciliador(
	tienda ClienteTienda,
	emisor Emisor,
	ordenes repository.OrdenFacturadaRepository,
	facturas repository.FacturaRepository,
	clientes repository.ClienteRepository,
	log *logger.Logger,
) *Conciliador {
	return &Conciliador{
		tienda:   tienda,
		emisor:   emisor,
		ordenes:  ordenes,
		facturas: facturas,
		clientes: clientes,
		log:      log,
		enCurso:  make(map[string]*ordenEnCurso),
	}
}

func (c *Conciliador) lockOrden(ctx context.Context, ordenID string) (func(), error) {
	c.mu.Lock()
	l, ok := c.enCurso[ordenID]
	if !ok {
		l = &ordenEnCurso{lock: make(chan struct{}, 1)}
		c.enCurso[ordenID] = l
	}
	l.interesados++
	c.mu.Unlock()

	soltar := func() {
		c.mu.Lock()
		l.interesados--
		if l.interesados == 0 {
			delete(c.enCurso, ordenID)
		}
		c.mu.Unlock()
	}

	select {
	case l.lock <- struct{}{}:
		return func() {
			<-l.lock
			soltar()
		}, nil
	case <-ctx.Done():
		soltar()
		return nil, fmt.Errorf("esperando la orden %s: %w", ordenID, ctx.Err())
	}
}

// Facturar emite (a lo sumo una vez) la factura de la orden. Es idempotente:
// si la orden ya se facturó devuelve la factura existente, y dos llamadas
// concurrentes terminan observando la misma.
func (c *Conciliador) Facturar(ctx context.Context, ordenID string, override *Override) (*entity.Factura, error) {
	if ordenID == "" {
		return nil, fmt.Errorf("%w: falta el id de la orden", domain.ErrValidacion)
	}

	unlock, err := c.lockOrden(ctx, ordenID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	link, err := c.ordenes.ObtenerPorOrdenID(ctx, ordenID)
	switch {
	case err == nil:
		switch link.Estado {
		case entity.OrdenFacturada:
			return c.facturaDe(ctx, link)
		case entity.OrdenEnProceso:
			// Con el lock en mano nadie de este proceso la está facturando:
			// o la tiene otra réplica, o quedó un marcador huérfano.
			return nil, fmt.Errorf("orden %s: %w", ordenID, domain.ErrOrdenEnProceso)
		case entity.OrdenConciliacionPendiente:
			return nil, fmt.Errorf("%w: la orden %s tiene un CAE emitido sin factura local; conciliar manualmente", domain.ErrConflicto, ordenID)
		case entity.OrdenConError:
			ok, rerr := c.ordenes.Retomar(ctx, ordenID)
			if rerr != nil {
				return nil, rerr
			}
			if !ok {
				return nil, fmt.Errorf("orden %s: %w", ordenID, domain.ErrOrdenEnProceso)
			}
		}
	case errors.Is(err, domain.ErrNoEncontrado):
		nuevo := &entity.OrdenFacturadaLink{
			ID:        uuid.New().String(),
			OrdenID:   ordenID,
			Estado:    entity.OrdenEnProceso,
			CreatedAt: time.Now(),
		}
		if override != nil {
			nuevo.OverrideRazonSocial = override.RazonSocial
			nuevo.OverrideCUIT = override.CUIT
			nuevo.OverrideCondicionIVA = override.CondicionIVA
		}
		gano, cerr := c.ordenes.Reclamar(ctx, nuevo)
		if cerr != nil {
			return nil, cerr
		}
		if !gano {
			// Otra réplica se adelantó entre la lectura y el insert.
			existente, eerr := c.ordenes.ObtenerPorOrdenID(ctx, ordenID)
			if eerr == nil && existente.Estado == entity.OrdenFacturada {
				return c.facturaDe(ctx, existente)
			}
			return nil, fmt.Errorf("orden %s: %w", ordenID, domain.ErrOrdenEnProceso)
		}
	default:
		return nil, err
	}

	factura, err := c.emitir(ctx, ordenID, override)
	if err != nil {
		var postCAE *domain.PersistenciaPostCAE
		if errors.As(err, &postCAE) {
			// El CAE ya existe: un reintento emitiría un segundo comprobante
			// para la misma orden. La fila queda fuera del circuito de
			// reintentos hasta que alguien concilie a mano.
			if merr := c.ordenes.MarcarConciliacionPendiente(ctx, ordenID, err.Error()); merr != nil {
				c.log.Error().Err(merr).Str("orden_id", ordenID).Msg("no se pudo parquear la orden en conciliación pendiente")
			}
			c.log.Error().
				Str("orden_id", ordenID).
				Str("cae", postCAE.CAE).
				Int64("numero", postCAE.Numero).
				Msg("CAE emitido sin factura local; la orden requiere conciliación manual")
			return nil, err
		}
		if merr := c.ordenes.MarcarError(ctx, ordenID, err.Error()); merr != nil {
			c.log.Error().Err(merr).Str("orden_id", ordenID).Msg("no se pudo registrar el error de la orden")
		}
		return nil, err
	}

	if merr := c.ordenes.MarcarFacturada(ctx, ordenID, factura.ID); merr != nil {
		// La factura existe y es recuperable por orden_id en la tabla de
		// facturas; solo el vínculo quedó desactualizado.
		c.log.Error().Err(merr).
			Str("orden_id", ordenID).
			Str("factura_id", factura.ID).
			Msg("factura emitida pero el vínculo de la orden no se pudo actualizar")
	}

	c.log.Info().
		Str("orden_id", ordenID).
		Str("factura_id", factura.ID).
		Str("numero_completo", factura.NumeroCompleto()).
		Msg("orden facturada")
	return factura, nil
}

// emitir arma el pedido de emisión desde la orden de Tiendanube y lo despacha.
func (c *Conciliador) emitir(ctx context.Context, ordenID string, override *Override) (*entity.Factura, error) {
	orden, err := c.tienda.ObtenerOrden(ctx, ordenID)
	if err != nil {
		return nil, fmt.Errorf("obteniendo la orden %s de Tiendanube: %w", ordenID, err)
	}
	if len(orden.Items) == 0 {
		return nil, fmt.Errorf("%w: la orden %s no tiene ítems", domain.ErrValidacion, ordenID)
	}

	receptor := orden.Receptor
	if !override.vacio() {
		if override.RazonSocial != "" {
			receptor.RazonSocial = override.RazonSocial
		}
		if override.CUIT != "" {
			receptor.CUIT = override.CUIT
		}
		if override.CondicionIVA != "" {
			receptor.CondicionIVA = override.CondicionIVA
		}
	}

	var hint int
	if override != nil {
		hint = override.TipoComprobante
	}

	// El total de la orden no se concilia contra el calculado: incluye envío
	// y descuentos globales que no viajan como ítems.
	return c.emisor.Emitir(ctx, &billing.PedidoEmision{
		Receptor:        receptor,
		ClienteID:       c.vincularCliente(ctx, receptor),
		OrdenID:         ordenID,
		TipoComprobante: hint,
		Items:           orden.Items,
	})
}

// vincularCliente busca (o da de alta) el cliente por CUIT para que la factura
// quede asociada. Mejor-esfuerzo: cualquier falla se loguea y la emisión sigue
// sin vínculo.
func (c *Conciliador) vincularCliente(ctx context.Context, receptor arca.Receptor) string {
	if c.clientes == nil {
		return ""
	}
	saneado := receptor.Saneado()
	if saneado.CUIT == "" {
		return ""
	}

	existente, err := c.clientes.BuscarPorCUIT(ctx, saneado.CUIT)
	if err == nil {
		return existente.ID
	}
	if !errors.Is(err, domain.ErrNoEncontrado) {
		c.log.Warn().Err(err).Str("cuit", saneado.CUIT).Msg("no se pudo buscar el cliente por CUIT")
		return ""
	}

	ahora := time.Now()
	nuevo := &entity.Cliente{
		ID:           uuid.New().String(),
		RazonSocial:  saneado.RazonSocial,
		CUIT:         saneado.CUIT,
		CondicionIVA: saneado.CondicionIVA,
		CreatedAt:    ahora,
		UpdatedAt:    ahora,
	}
	if err := c.clientes.Crear(ctx, nuevo); err != nil {
		if errors.Is(err, domain.ErrConflicto) {
			// Carrera con otra emisión: el cliente ya existe.
			if existente, berr := c.clientes.BuscarPorCUIT(ctx, saneado.CUIT); berr == nil {
				return existente.ID
			}
		}
		c.log.Warn().Err(err).Str("cuit", saneado.CUIT).Msg("no se pudo dar de alta el cliente de la orden")
		return ""
	}
	return nuevo.ID
}

// facturaDe resuelve la factura ya emitida de un vínculo facturado.
func (c *Conciliador) facturaDe(ctx context.Context, link *entity.OrdenFacturadaLink) (*entity.Factura, error) {
	if link.FacturaID == "" {
		return nil, fmt.Errorf("%w: la orden %s figura facturada sin factura asociada", domain.ErrConflicto, link.OrdenID)
	}
	return c.facturas.ObtenerPorID(ctx, link.FacturaID)
}

// Estado devuelve el vínculo de conciliación de la orden.
func (c *Conciliador) Estado(ctx context.Context, ordenID string) (*entity.OrdenFacturadaLink, error) {
	return c.ordenes.ObtenerPorOrdenID(ctx, ordenID)
}

// Listar lista vínculos por estado.
func (c *Conciliador) Listar(ctx context.Context, estado string, limit, offset int) ([]*entity.OrdenFacturadaLink, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.ordenes.Listar(ctx, estado, limit, offset)
}
