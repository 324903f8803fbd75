package billing_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes en memoria
// ──────────────────────────────────────────────────────────────────────────────

type contadorKey struct{ tipo, pv int }

// fakeContadores implementa repository.ContadorRepository en memoria.
type fakeContadores struct {
	mu         sync.Mutex
	contadores map[contadorKey]int64
	fallaAl    bool // Guardar devuelve error
}

func newFakeContadores() *fakeContadores {
	return &fakeContadores{contadores: make(map[contadorKey]int64)}
}

func (f *fakeContadores) Obtener(_ context.Context, tipo, pv int) (*entity.ContadorSecuencia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.contadores[contadorKey{tipo, pv}]
	if !ok {
		return nil, domain.ErrNoEncontrado
	}
	return &entity.ContadorSecuencia{TipoComprobante: tipo, PuntoVenta: pv, UltimoNumero: n}, nil
}

func (f *fakeContadores) Guardar(_ context.Context, c *entity.ContadorSecuencia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fallaAl {
		return fmt.Errorf("db caída")
	}
	f.contadores[contadorKey{c.TipoComprobante, c.PuntoVenta}] = c.UltimoNumero
	return nil
}

func (f *fakeContadores) valor(tipo, pv int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contadores[contadorKey{tipo, pv}]
}

// fakeAutorizador implementa billing.AutorizadorARCA. El comportamiento de
// SolicitarCAE se configura por test vía responder; por defecto autoriza y
// avanza su propio registro de último autorizado.
type fakeAutorizador struct {
	mu          sync.Mutex
	ultimo      map[contadorKey]int64
	solicitudes []*billing.SolicitudCAE
	responder   func(*billing.SolicitudCAE) (*billing.ResultadoCAE, error)
}

func newFakeAutorizador() *fakeAutorizador {
	return &fakeAutorizador{ultimo: make(map[contadorKey]int64)}
}

func (f *fakeAutorizador) UltimoAutorizado(_ context.Context, pv, tipo int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ultimo[contadorKey{tipo, pv}], nil
}

func (f *fakeAutorizador) SolicitarCAE(_ context.Context, s *billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copia := *s
	f.solicitudes = append(f.solicitudes, &copia)
	if f.responder != nil {
		return f.responder(s)
	}
	f.ultimo[contadorKey{s.TipoComprobante, s.PuntoVenta}] = s.Numero
	return &billing.ResultadoCAE{
		CAE:         fmt.Sprintf("7512345678%05d", s.Numero),
		Vencimiento: time.Now().AddDate(0, 0, 10),
		Numero:      s.Numero,
	}, nil
}

func (f *fakeAutorizador) setUltimo(tipo, pv int, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ultimo[contadorKey{tipo, pv}] = n
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "development", Level: "error"})
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests del coordinador
// ──────────────────────────────────────────────────────────────────────────────

func TestCoordinador_PrimerNumeroTrasSincronizar(t *testing.T) {
	contadores := newFakeContadores()
	ws := newFakeAutorizador()
	ws.setUltimo(arca.FacturaB, 1, 41)
	coord := billing.NewCoordinadorSecuencia(contadores, ws, testLogger())

	reserva, err := coord.Reservar(context.Background(), arca.FacturaB, 1)
	require.NoError(t, err)
	defer reserva.Abandonar()

	assert.Equal(t, int64(42), reserva.Numero, "próximo = último autorizado del WS + 1")
}

func TestCoordinador_AdoptaElMayorEntreDBYWS(t *testing.T) {
	contadores := newFakeContadores()
	contadores.contadores[contadorKey{arca.FacturaB, 1}] = 50 // DB adelantada al WS
	ws := newFakeAutorizador()
	ws.setUltimo(arca.FacturaB, 1, 41)
	coord := billing.NewCoordinadorSecuencia(contadores, ws, testLogger())

	reserva, err := coord.Reservar(context.Background(), arca.FacturaB, 1)
	require.NoError(t, err)
	defer reserva.Abandonar()

	assert.Equal(t, int64(51), reserva.Numero)
}

func TestCoordinador_AbandonarNoConsumeElNumero(t *testing.T) {
	coord := billing.NewCoordinadorSecuencia(newFakeContadores(), newFakeAutorizador(), testLogger())
	ctx := context.Background()

	r1, err := coord.Reservar(ctx, arca.FacturaB, 1)
	require.NoError(t, err)
	primero := r1.Numero
	r1.Abandonar()

	r2, err := coord.Reservar(ctx, arca.FacturaB, 1)
	require.NoError(t, err)
	defer r2.Abandonar()

	assert.Equal(t, primero, r2.Numero, "un número abandonado se vuelve a entregar")
}

func TestCoordinador_ConfirmarAvanzaYPersiste(t *testing.T) {
	contadores := newFakeContadores()
	coord := billing.NewCoordinadorSecuencia(contadores, newFakeAutorizador(), testLogger())
	ctx := context.Background()

	r1, err := coord.Reservar(ctx, arca.FacturaB, 3)
	require.NoError(t, err)
	require.NoError(t, r1.Confirmar(ctx))

	assert.Equal(t, r1.Numero, contadores.valor(arca.FacturaB, 3), "el contador persistido refleja el confirmado")

	r2, err := coord.Reservar(ctx, arca.FacturaB, 3)
	require.NoError(t, err)
	defer r2.Abandonar()
	assert.Equal(t, r1.Numero+1, r2.Numero)
}

func TestCoordinador_ConfirmarAvanzaAunqueLaPersistenciaFalle(t *testing.T) {
	contadores := newFakeContadores()
	coord := billing.NewCoordinadorSecuencia(contadores, newFakeAutorizador(), testLogger())
	ctx := context.Background()

	r1, err := coord.Reservar(ctx, arca.FacturaB, 1)
	require.NoError(t, err)
	contadores.fallaAl = true
	assert.Error(t, r1.Confirmar(ctx), "la falla de persistencia se reporta")

	// El número ya fue consumido en el WS: en memoria la serie avanza igual.
	r2, err := coord.Reservar(ctx, arca.FacturaB, 1)
	require.NoError(t, err)
	defer r2.Abandonar()
	assert.Equal(t, r1.Numero+1, r2.Numero)
}

func TestCoordinador_ReservarRespetaElContext(t *testing.T) {
	coord := billing.NewCoordinadorSecuencia(newFakeContadores(), newFakeAutorizador(), testLogger())

	bloqueante, err := coord.Reservar(context.Background(), arca.FacturaB, 1)
	require.NoError(t, err)
	defer bloqueante.Abandonar()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = coord.Reservar(ctx, arca.FacturaB, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "la espera del lock se aborta con el context")
}

func TestCoordinador_SeriesIndependientesNoSeBloquean(t *testing.T) {
	coord := billing.NewCoordinadorSecuencia(newFakeContadores(), newFakeAutorizador(), testLogger())
	ctx := context.Background()

	rB, err := coord.Reservar(ctx, arca.FacturaB, 1)
	require.NoError(t, err)
	defer rB.Abandonar()

	// Con la serie B tomada, A y otro punto de venta reservan sin esperar.
	ctxCorto, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	rA, err := coord.Reservar(ctxCorto, arca.FacturaA, 1)
	require.NoError(t, err, "otra letra es otra serie")
	rA.Abandonar()

	rPV, err := coord.Reservar(ctxCorto, arca.FacturaB, 2)
	require.NoError(t, err, "otro punto de venta es otra serie")
	rPV.Abandonar()
}

func TestReserva_Resincronizar(t *testing.T) {
	ws := newFakeAutorizador()
	coord := billing.NewCoordinadorSecuencia(newFakeContadores(), ws, testLogger())
	ctx := context.Background()

	reserva, err := coord.Reservar(ctx, arca.FacturaB, 1)
	require.NoError(t, err)
	defer reserva.Abandonar()
	require.Equal(t, int64(1), reserva.Numero)

	// Otro emisor (portal de ARCA) avanzó la serie hasta 15.
	ws.setUltimo(arca.FacturaB, 1, 15)
	require.NoError(t, reserva.Resincronizar(ctx))

	assert.Equal(t, int64(16), reserva.Numero)
}

// Propiedad central de la serie: bajo concurrencia los números confirmados
// son únicos y contiguos.
func TestCoordinador_NumerosContiguosBajoConcurrencia(t *testing.T) {
	coord := billing.NewCoordinadorSecuencia(newFakeContadores(), newFakeAutorizador(), testLogger())
	ctx := context.Background()

	const emisiones = 40
	numeros := make(chan int64, emisiones)
	var wg sync.WaitGroup
	for i := 0; i < emisiones; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := coord.Reservar(ctx, arca.FacturaB, 1)
			if !assert.NoError(t, err) {
				return
			}
			numeros <- r.Numero
			assert.NoError(t, r.Confirmar(ctx))
		}()
	}
	wg.Wait()
	close(numeros)

	var vistos []int64
	for n := range numeros {
		vistos = append(vistos, n)
	}
	require.Len(t, vistos, emisiones)
	sort.Slice(vistos, func(i, j int) bool { return vistos[i] < vistos[j] })
	for i, n := range vistos {
		assert.Equal(t, int64(i+1), n, "los números confirmados deben ser contiguos desde 1")
	}
}
