package arca

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// AutorizadorSimulado implementa billing.AutorizadorARCA sin salir a la red.
// Es el autorizador del entorno dev: autoriza todo lo bien formado, lleva su
// propia numeración y fabrica CAEs sintéticos. Reproduce la semántica del WS
// que le importa al resto del sistema: numeración estricta y error si
// CbteDesde no es el esperado.
type AutorizadorSimulado struct {
	log *logger.Logger

	mu     sync.Mutex
	series map[string]int64
	caes   int64
}

// NewAutorizadorSimulado construye el autorizador de desarrollo.
func NewAutorizadorSimulado(log *logger.Logger) *AutorizadorSimulado {
	return &AutorizadorSimulado{
		log:    log,
		series: make(map[string]int64),
	}
}

func claveSerie(pv, tipo int) string { return fmt.Sprintf("%d-%d", pv, tipo) }

// UltimoAutorizado devuelve el último número autorizado de la serie simulada.
func (a *AutorizadorSimulado) UltimoAutorizado(_ context.Context, puntoVenta, tipoComprobante int) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.series[claveSerie(puntoVenta, tipoComprobante)], nil
}

// SolicitarCAE autoriza el comprobante si el número es el siguiente de la
// serie; si no, acusa desincronización como haría el WS real.
func (a *AutorizadorSimulado) SolicitarCAE(_ context.Context, s *billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	clave := claveSerie(s.PuntoVenta, s.TipoComprobante)
	if s.Numero != a.series[clave]+1 {
		return nil, domain.ErrSecuenciaDesincronizada
	}
	if !s.ImpTotal.IsPositive() {
		return nil, &domain.RechazoARCA{Observaciones: []domain.Observacion{
			{Codigo: 10018, Mensaje: "El importe total debe ser mayor a cero"},
		}}
	}

	a.series[clave] = s.Numero
	a.caes++
	cae := fmt.Sprintf("%014d", 70000000000000+a.caes)

	a.log.Debug().
		Int("punto_venta", s.PuntoVenta).
		Int("tipo_comprobante", s.TipoComprobante).
		Int64("numero", s.Numero).
		Str("cae", cae).
		Msg("CAE simulado emitido")

	return &billing.ResultadoCAE{
		CAE:         cae,
		Vencimiento: time.Now().AddDate(0, 0, 10),
		Numero:      s.Numero,
	}, nil
}
