package billing_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// fakeFacturas implementa repository.FacturaRepository en memoria.
type fakeFacturas struct {
	mu         sync.Mutex
	facturas   map[string]*entity.Factura
	items      map[string][]*entity.ItemFactura
	fallaCrear bool
}

func newFakeFacturas() *fakeFacturas {
	return &fakeFacturas{
		facturas: make(map[string]*entity.Factura),
		items:    make(map[string][]*entity.ItemFactura),
	}
}

func (f *fakeFacturas) Crear(_ context.Context, factura *entity.Factura, items []*entity.ItemFactura) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fallaCrear {
		return fmt.Errorf("db caída")
	}
	f.facturas[factura.ID] = factura
	f.items[factura.ID] = items
	return nil
}

func (f *fakeFacturas) ObtenerPorID(_ context.Context, id string) (*entity.Factura, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fac, ok := f.facturas[id]; ok {
		return fac, nil
	}
	return nil, domain.ErrNoEncontrado
}

func (f *fakeFacturas) ObtenerPorNumero(_ context.Context, tipo, pv int, numero int64) (*entity.Factura, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fac := range f.facturas {
		if fac.TipoComprobante == tipo && fac.PuntoVenta == pv && fac.Numero == numero {
			return fac, nil
		}
	}
	return nil, domain.ErrNoEncontrado
}

func (f *fakeFacturas) ItemsDe(_ context.Context, facturaID string) ([]*entity.ItemFactura, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[facturaID], nil
}

func (f *fakeFacturas) Listar(_ context.Context, limit, offset int) ([]*entity.Factura, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Factura, 0, len(f.facturas))
	for _, fac := range f.facturas {
		out = append(out, fac)
	}
	return out, nil
}

func (f *fakeFacturas) cantidad() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.facturas)
}

// armarEmisor construye un emisor con fakes, punto de venta 1, no monotributista.
func armarEmisor(t *testing.T) (*billing.EmisorFacturas, *fakeFacturas, *fakeAutorizador, *fakeContadores) {
	t.Helper()
	facturas := newFakeFacturas()
	ws := newFakeAutorizador()
	contadores := newFakeContadores()
	coord := billing.NewCoordinadorSecuencia(contadores, ws, testLogger())
	emisor := billing.NewEmisorFacturas(facturas, coord, ws,
		billing.EmisorConfig{PuntoVenta: 1}, testLogger())
	return emisor, facturas, ws, contadores
}

func pedidoRI() *billing.PedidoEmision {
	return &billing.PedidoEmision{
		Receptor: arca.Receptor{
			RazonSocial:  "Acme SRL",
			CUIT:         "20409378472",
			CondicionIVA: entity.CondicionResponsableInscripto,
		},
		Items: []arca.ItemCalculo{
			{Descripcion: "Servicio de diseño", Cantidad: dec("1"), PrecioUnitario: dec("1000"), Alicuota: arca.Alicuota21},
		},
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ──────────────────────────────────────────────────────────────────────────────
// Tests del emisor
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitir_FlujoFeliz(t *testing.T) {
	emisor, facturas, ws, contadores := armarEmisor(t)

	factura, err := emisor.Emitir(context.Background(), pedidoRI())
	require.NoError(t, err)

	assert.Equal(t, arca.FacturaA, factura.TipoComprobante, "RI sin hint recibe Factura A")
	assert.Equal(t, int64(1), factura.Numero)
	assert.Equal(t, "0001-00000001", factura.NumeroCompleto())
	assert.NotEmpty(t, factura.CAE)
	assert.Equal(t, entity.EstadoAutorizada, factura.Estado)
	assert.True(t, factura.Total.Equal(dec("1210")), "1000 + 21%% de IVA")
	assert.Equal(t, 1, facturas.cantidad())
	assert.Equal(t, int64(1), contadores.valor(arca.FacturaA, 1), "el contador quedó confirmado")

	require.Len(t, ws.solicitudes, 1)
	sol := ws.solicitudes[0]
	assert.Equal(t, arca.DocCUIT, sol.TipoDoc)
	assert.Equal(t, int64(20409378472), sol.NroDoc)
	assert.True(t, sol.ImpNeto.Equal(dec("1000")))
	assert.True(t, sol.ImpIVA.Equal(dec("210")))
	require.Len(t, sol.DetalleIVA, 1)
	assert.Equal(t, arca.Alicuota21, sol.DetalleIVA[0].Codigo)
}

func TestEmitir_RechazoNoConsumeElNumero(t *testing.T) {
	emisor, facturas, ws, _ := armarEmisor(t)
	ws.responder = func(*billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
		return nil, &domain.RechazoARCA{Observaciones: []domain.Observacion{
			{Codigo: 10048, Mensaje: "El documento del receptor es inválido"},
		}}
	}

	_, err := emisor.Emitir(context.Background(), pedidoRI())
	var rechazo *domain.RechazoARCA
	require.ErrorAs(t, err, &rechazo)
	assert.True(t, rechazo.TieneCodigo(10048))
	assert.Contains(t, rechazo.Error(), "receptor es inválido", "los mensajes del WS se preservan textuales")
	assert.Zero(t, facturas.cantidad(), "un rechazo no persiste factura")

	// El WS no registró nada: el mismo número se usa en el próximo intento.
	ws.responder = nil
	factura, err := emisor.Emitir(context.Background(), pedidoRI())
	require.NoError(t, err)
	assert.Equal(t, int64(1), factura.Numero, "el número rechazado se reutiliza")
}

func TestEmitir_FallaTransitoriaLiberaElNumero(t *testing.T) {
	emisor, facturas, ws, _ := armarEmisor(t)
	ws.responder = func(*billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
		return nil, fmt.Errorf("timeout del WS: %w", domain.ErrARCANoDisponible)
	}

	_, err := emisor.Emitir(context.Background(), pedidoRI())
	require.ErrorIs(t, err, domain.ErrARCANoDisponible)
	assert.Zero(t, facturas.cantidad())

	// Reintento del caller: mismo número, ahora autorizado.
	ws.responder = nil
	factura, err := emisor.Emitir(context.Background(), pedidoRI())
	require.NoError(t, err)
	assert.Equal(t, int64(1), factura.Numero, "tras una falla transitoria se reintenta con el mismo número")
	assert.NotEmpty(t, factura.CAE)
}

func TestEmitir_DesincronizacionSeResincronizaUnaVez(t *testing.T) {
	emisor, _, ws, _ := armarEmisor(t)

	intentos := 0
	ws.responder = func(s *billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
		intentos++
		if intentos == 1 {
			// Otro emisor ya usó este número: el WS acusa numeración desfasada.
			ws.ultimo[contadorKey{s.TipoComprobante, s.PuntoVenta}] = 30
			return nil, domain.ErrSecuenciaDesincronizada
		}
		return &billing.ResultadoCAE{CAE: "75999", Numero: s.Numero}, nil
	}

	factura, err := emisor.Emitir(context.Background(), pedidoRI())
	require.NoError(t, err)
	assert.Equal(t, int64(31), factura.Numero, "tras resincronizar se emite con el número siguiente al del WS")
	assert.Equal(t, 2, intentos)
}

func TestEmitir_DesincronizacionPersistenteEsTerminal(t *testing.T) {
	emisor, facturas, ws, _ := armarEmisor(t)
	ws.responder = func(*billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
		return nil, domain.ErrSecuenciaDesincronizada
	}

	_, err := emisor.Emitir(context.Background(), pedidoRI())
	assert.ErrorIs(t, err, domain.ErrSecuenciaDesincronizada, "una sola resincronización automática")
	assert.Zero(t, facturas.cantidad())
}

func TestEmitir_PersistenciaPostCAE(t *testing.T) {
	emisor, facturas, _, contadores := armarEmisor(t)
	facturas.fallaCrear = true

	_, err := emisor.Emitir(context.Background(), pedidoRI())
	var pErr *domain.PersistenciaPostCAE
	require.ErrorAs(t, err, &pErr)
	assert.NotEmpty(t, pErr.CAE, "el error expone el CAE emitido")
	assert.Equal(t, int64(1), pErr.Numero)
	assert.Equal(t, int64(1), contadores.valor(arca.FacturaA, 1), "el número quedó consumido en el WS")

	// La emisión siguiente no reutiliza el número consumido.
	facturas.fallaCrear = false
	factura, err := emisor.Emitir(context.Background(), pedidoRI())
	require.NoError(t, err)
	assert.Equal(t, int64(2), factura.Numero)
}

// Un caller que canceló antes del envío aborta limpio: nada llega al WS, no
// se consume número y la reserva abandonada queda disponible.
func TestEmitir_CancelacionAntesDelEnvioNoConsumeNumero(t *testing.T) {
	emisor, facturas, ws, _ := armarEmisor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := emisor.Emitir(ctx, pedidoRI())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ws.solicitudes, "con el context cancelado nada sale al WS")
	assert.Zero(t, facturas.cantidad())

	// El número abandonado sigue libre para la próxima emisión.
	factura, err := emisor.Emitir(context.Background(), pedidoRI())
	require.NoError(t, err)
	assert.Equal(t, int64(1), factura.Numero)
}

func TestEmitir_MonotributistaEmiteCSinDiscriminar(t *testing.T) {
	facturas := newFakeFacturas()
	ws := newFakeAutorizador()
	coord := billing.NewCoordinadorSecuencia(newFakeContadores(), ws, testLogger())
	emisor := billing.NewEmisorFacturas(facturas, coord, ws,
		billing.EmisorConfig{PuntoVenta: 2, Monotributista: true}, testLogger())

	factura, err := emisor.Emitir(context.Background(), pedidoRI())
	require.NoError(t, err)

	assert.Equal(t, arca.FacturaC, factura.TipoComprobante)
	require.Len(t, ws.solicitudes, 1)
	sol := ws.solicitudes[0]
	assert.True(t, sol.ImpNeto.Equal(sol.ImpTotal), "letra C: neto = total")
	assert.True(t, sol.ImpIVA.IsZero())
	assert.Empty(t, sol.DetalleIVA)
	assert.True(t, factura.IVA21.IsZero(), "el IVA queda embebido en el precio")
}

func TestEmitir_ValidacionesPrevias(t *testing.T) {
	emisor, facturas, ws, _ := armarEmisor(t)

	t.Run("sin items", func(t *testing.T) {
		pedido := pedidoRI()
		pedido.Items = nil
		_, err := emisor.Emitir(context.Background(), pedido)
		assert.ErrorIs(t, err, domain.ErrValidacion)
	})
	t.Run("hint incompatible", func(t *testing.T) {
		pedido := pedidoRI()
		pedido.TipoComprobante = arca.FacturaB // B a un RI
		_, err := emisor.Emitir(context.Background(), pedido)
		assert.ErrorIs(t, err, domain.ErrValidacion)
	})
	t.Run("total declarado que no cierra", func(t *testing.T) {
		pedido := pedidoRI()
		declarado := dec("9999")
		pedido.TotalDeclarado = &declarado
		_, err := emisor.Emitir(context.Background(), pedido)
		assert.ErrorIs(t, err, domain.ErrValidacion)
	})

	assert.Zero(t, facturas.cantidad())
	assert.Empty(t, ws.solicitudes, "nada llega al WS si la validación falla")
}

func TestEmitir_ConcurrenciaMismaSerie(t *testing.T) {
	emisor, facturas, _, _ := armarEmisor(t)

	const emisiones = 20
	var wg sync.WaitGroup
	errs := make(chan error, emisiones)
	for i := 0; i < emisiones; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := emisor.Emitir(context.Background(), pedidoRI())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Todas las facturas existen y con números distintos y contiguos.
	assert.Equal(t, emisiones, facturas.cantidad())
	vistos := make(map[int64]bool)
	for _, f := range facturas.facturas {
		assert.False(t, vistos[f.Numero], "número duplicado: %d", f.Numero)
		vistos[f.Numero] = true
		assert.True(t, f.Numero >= 1 && f.Numero <= emisiones)
	}
}
