package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// serieKey identifica una serie de numeración independiente.
type serieKey struct {
	tipo int
	pv   int
}

// serie es el estado en memoria de una serie de numeración. El canal con
// capacidad 1 actúa de lock: permite abortar la espera por context, cosa que
// un sync.Mutex no ofrece.
type serie struct {
	lock         chan struct{}
	sincronizada bool
	ultimo       int64 // último número confirmado
}

// CoordinadorSecuencia reparte números de comprobante por serie (tipo, punto
// de venta). Cada número se entrega como una Reserva que retiene el lock de la
// serie hasta Confirmar, Abandonar o consumirse en un rechazo: así dos
// emisiones concurrentes de la misma serie nunca ven el mismo número y los
// números confirmados quedan contiguos.
//
// En el primer uso de una serie el coordinador se sincroniza contra el WS
// (FECompUltimoAutorizado) y contra el contador persistido, quedándose con el
// mayor de ambos.
type CoordinadorSecuencia struct {
	contadores  repository.ContadorRepository
	autorizador AutorizadorARCA
	log         *logger.Logger

	mu     sync.Mutex
	series map[serieKey]*serie
}

// NewCoordinadorSecuencia construye el coordinador.
func NewCoordinadorSecuencia(
	contadores repository.ContadorRepository,
	autorizador AutorizadorARCA,
	log *logger.Logger,
) *CoordinadorSecuencia {
	return &CoordinadorSecuencia{
		contadores:  contadores,
		autorizador: autorizador,
		log:         log,
		series:      make(map[serieKey]*serie),
	}
}

// Reserva es un número de comprobante tomado de una serie. Quien la recibe
// DEBE terminar llamando exactamente una vez a Confirmar o a Abandonar;
// mientras tanto nadie más puede reservar en la misma serie.
type Reserva struct {
	TipoComprobante int
	PuntoVenta      int
	Numero          int64

	coord    *CoordinadorSecuencia
	serie    *serie
	liberada bool
}

func (c *CoordinadorSecuencia) serieDe(tipo, pv int) *serie {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := serieKey{tipo: tipo, pv: pv}
	s, ok := c.series[key]
	if !ok {
		s = &serie{lock: make(chan struct{}, 1)}
		c.series[key] = s
	}
	return s
}

// Reservar toma el lock de la serie y devuelve el próximo número
// (último confirmado + 1). Si el context se cancela durante la espera,
// devuelve su error sin tocar la serie.
func (c *CoordinadorSecuencia) Reservar(ctx context.Context, tipoComprobante, puntoVenta int) (*Reserva, error) {
	s := c.serieDe(tipoComprobante, puntoVenta)

	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("esperando el lock de la serie %d-%d: %w", puntoVenta, tipoComprobante, ctx.Err())
	}

	if !s.sincronizada {
		if err := c.sincronizar(ctx, s, tipoComprobante, puntoVenta); err != nil {
			<-s.lock
			return nil, err
		}
	}

	return &Reserva{
		TipoComprobante: tipoComprobante,
		PuntoVenta:      puntoVenta,
		Numero:          s.ultimo + 1,
		coord:           c,
		serie:           s,
	}, nil
}

// sincronizar inicializa el último número de la serie. Se invoca con el lock
// tomado. Se queda con el mayor entre el contador persistido y el último
// autorizado que informa el WS.
func (c *CoordinadorSecuencia) sincronizar(ctx context.Context, s *serie, tipo, pv int) error {
	var persistido int64
	contador, err := c.contadores.Obtener(ctx, tipo, pv)
	switch {
	case err == nil:
		persistido = contador.UltimoNumero
	case errors.Is(err, domain.ErrNoEncontrado):
		persistido = 0
	default:
		return fmt.Errorf("leyendo contador de la serie %d-%d: %w", pv, tipo, err)
	}

	autorizado, err := c.autorizador.UltimoAutorizado(ctx, pv, tipo)
	if err != nil {
		return fmt.Errorf("consultando último autorizado de la serie %d-%d: %w", pv, tipo, err)
	}

	s.ultimo = persistido
	if autorizado > s.ultimo {
		c.log.Warn().
			Int("punto_venta", pv).
			Int("tipo_comprobante", tipo).
			Int64("contador_local", persistido).
			Int64("ultimo_autorizado", autorizado).
			Msg("contador local atrasado respecto del WS; se adopta el del WS")
		s.ultimo = autorizado
	}
	s.sincronizada = true
	return nil
}

// Confirmar registra el número como emitido y libera la serie. Se llama
// cuando el organismo consumió el número (hay un CAE emitido, incluso si la
// factura local no se pudo guardar); un rechazo en cambio se Abandona. El error
// de persistencia del contador no revierte el avance en memoria: el número ya
// está consumido en el WS y la resincronización del próximo arranque lo
// recupera.
func (r *Reserva) Confirmar(ctx context.Context) error {
	if r.liberada {
		return fmt.Errorf("%w: la reserva %d ya fue liberada", domain.ErrConflicto, r.Numero)
	}
	r.serie.ultimo = r.Numero
	err := r.coord.contadores.Guardar(ctx, &entity.ContadorSecuencia{
		TipoComprobante: r.TipoComprobante,
		PuntoVenta:      r.PuntoVenta,
		UltimoNumero:    r.Numero,
		ActualizadoEn:   time.Now(),
	})
	r.liberada = true
	<-r.serie.lock
	if err != nil {
		return fmt.Errorf("persistiendo contador de la serie %d-%d: %w", r.PuntoVenta, r.TipoComprobante, err)
	}
	return nil
}

// Abandonar libera la serie sin consumir el número; el próximo Reservar
// devuelve el mismo número. Es idempotente para simplificar los defer.
func (r *Reserva) Abandonar() {
	if r.liberada {
		return
	}
	r.liberada = true
	<-r.serie.lock
}

// Resincronizar vuelve a consultar el último autorizado del WS sin soltar el
// lock y actualiza la reserva al número siguiente. Se usa cuando el WS acusa
// numeración desfasada (el contador local quedó atrás de otro emisor).
func (r *Reserva) Resincronizar(ctx context.Context) error {
	if r.liberada {
		return fmt.Errorf("%w: la reserva %d ya fue liberada", domain.ErrConflicto, r.Numero)
	}
	autorizado, err := r.coord.autorizador.UltimoAutorizado(ctx, r.PuntoVenta, r.TipoComprobante)
	if err != nil {
		return fmt.Errorf("resincronizando la serie %d-%d: %w", r.PuntoVenta, r.TipoComprobante, err)
	}
	r.coord.log.Warn().
		Int("punto_venta", r.PuntoVenta).
		Int("tipo_comprobante", r.TipoComprobante).
		Int64("numero_reservado", r.Numero).
		Int64("ultimo_autorizado", autorizado).
		Msg("serie resincronizada contra el WS")
	r.serie.ultimo = autorizado
	r.Numero = autorizado + 1
	return nil
}
