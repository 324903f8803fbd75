package orders_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/application/orders"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type fakeTienda struct {
	ordenes map[string]*orders.OrdenTienda
}

func (f *fakeTienda) ObtenerOrden(_ context.Context, id string) (*orders.OrdenTienda, error) {
	if o, ok := f.ordenes[id]; ok {
		return o, nil
	}
	return nil, domain.ErrNoEncontrado
}

// fakeEmisor registra los pedidos y emite facturas sintéticas. demora simula
// el viaje al WS para los tests de concurrencia.
type fakeEmisor struct {
	llamadas atomic.Int64
	falla    error
	demora   time.Duration

	mu        sync.Mutex
	numero    int64
	recibidos []*billing.PedidoEmision
}

func (f *fakeEmisor) Emitir(_ context.Context, pedido *billing.PedidoEmision) (*entity.Factura, error) {
	f.llamadas.Add(1)
	if f.demora > 0 {
		time.Sleep(f.demora)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recibidos = append(f.recibidos, pedido)
	if f.falla != nil {
		return nil, f.falla
	}
	f.numero++
	return &entity.Factura{
		ID:              uuid.New().String(),
		OrdenID:         pedido.OrdenID,
		TipoComprobante: arca.FacturaB,
		PuntoVenta:      1,
		Numero:          f.numero,
		CAE:             "75000011112222",
		Estado:          entity.EstadoAutorizada,
	}, nil
}

// fakeOrdenes implementa repository.OrdenFacturadaRepository en memoria con la
// semántica de insert condicional de Reclamar.
type fakeOrdenes struct {
	mu    sync.Mutex
	links map[string]*entity.OrdenFacturadaLink
}

func newFakeOrdenes() *fakeOrdenes {
	return &fakeOrdenes{links: make(map[string]*entity.OrdenFacturadaLink)}
}

func (f *fakeOrdenes) Reclamar(_ context.Context, link *entity.OrdenFacturadaLink) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[link.OrdenID]; ok {
		return false, nil
	}
	copia := *link
	copia.Intentos = 1
	f.links[link.OrdenID] = &copia
	return true, nil
}

func (f *fakeOrdenes) Retomar(_ context.Context, ordenID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[ordenID]
	if !ok || link.Estado != entity.OrdenConError {
		return false, nil
	}
	link.Estado = entity.OrdenEnProceso
	link.Intentos++
	return true, nil
}

func (f *fakeOrdenes) ObtenerPorOrdenID(_ context.Context, ordenID string) (*entity.OrdenFacturadaLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link, ok := f.links[ordenID]; ok {
		copia := *link
		return &copia, nil
	}
	return nil, domain.ErrNoEncontrado
}

func (f *fakeOrdenes) MarcarFacturada(_ context.Context, ordenID, facturaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[ordenID]
	if !ok {
		return domain.ErrNoEncontrado
	}
	link.Estado = entity.OrdenFacturada
	link.FacturaID = facturaID
	link.UltimoError = ""
	return nil
}

func (f *fakeOrdenes) MarcarError(_ context.Context, ordenID, mensaje string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[ordenID]
	if !ok {
		return domain.ErrNoEncontrado
	}
	link.Estado = entity.OrdenConError
	link.UltimoError = mensaje
	return nil
}

func (f *fakeOrdenes) MarcarConciliacionPendiente(_ context.Context, ordenID, mensaje string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[ordenID]
	if !ok {
		return domain.ErrNoEncontrado
	}
	link.Estado = entity.OrdenConciliacionPendiente
	link.UltimoError = mensaje
	return nil
}

func (f *fakeOrdenes) Listar(_ context.Context, estado string, limit, offset int) ([]*entity.OrdenFacturadaLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.OrdenFacturadaLink
	for _, l := range f.links {
		if estado == "" || l.Estado == estado {
			copia := *l
			out = append(out, &copia)
		}
	}
	return out, nil
}

// fakeFacturasIdx resuelve facturas emitidas por ID (solo lo que usa el
// conciliador).
type fakeFacturasIdx struct {
	mu       sync.Mutex
	porID    map[string]*entity.Factura
}

func newFakeFacturasIdx() *fakeFacturasIdx {
	return &fakeFacturasIdx{porID: make(map[string]*entity.Factura)}
}

func (f *fakeFacturasIdx) guardar(fac *entity.Factura) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.porID[fac.ID] = fac
}

func (f *fakeFacturasIdx) Crear(_ context.Context, fac *entity.Factura, _ []*entity.ItemFactura) error {
	f.guardar(fac)
	return nil
}

func (f *fakeFacturasIdx) ObtenerPorID(_ context.Context, id string) (*entity.Factura, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fac, ok := f.porID[id]; ok {
		return fac, nil
	}
	return nil, domain.ErrNoEncontrado
}

func (f *fakeFacturasIdx) ObtenerPorNumero(_ context.Context, _, _ int, _ int64) (*entity.Factura, error) {
	return nil, domain.ErrNoEncontrado
}

func (f *fakeFacturasIdx) ItemsDe(_ context.Context, _ string) ([]*entity.ItemFactura, error) {
	return nil, nil
}

func (f *fakeFacturasIdx) Listar(_ context.Context, _, _ int) ([]*entity.Factura, error) {
	return nil, nil
}

// fakeClientes implementa repository.ClienteRepository en memoria, indexado
// por CUIT.
type fakeClientes struct {
	mu      sync.Mutex
	porCUIT map[string]*entity.Cliente
}

func newFakeClientes() *fakeClientes {
	return &fakeClientes{porCUIT: make(map[string]*entity.Cliente)}
}

func (f *fakeClientes) Crear(_ context.Context, c *entity.Cliente) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.porCUIT[c.CUIT]; ok {
		return domain.ErrConflicto
	}
	copia := *c
	f.porCUIT[c.CUIT] = &copia
	return nil
}

func (f *fakeClientes) ObtenerPorID(_ context.Context, id string) (*entity.Cliente, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.porCUIT {
		if c.ID == id {
			copia := *c
			return &copia, nil
		}
	}
	return nil, domain.ErrNoEncontrado
}

func (f *fakeClientes) BuscarPorCUIT(_ context.Context, cuit string) (*entity.Cliente, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.porCUIT[cuit]; ok {
		copia := *c
		return &copia, nil
	}
	return nil, domain.ErrNoEncontrado
}

func (f *fakeClientes) Actualizar(_ context.Context, c *entity.Cliente) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.porCUIT[c.CUIT] = c
	return nil
}

func (f *fakeClientes) Listar(_ context.Context, _, _ int) ([]*entity.Cliente, error) {
	return nil, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Armado
// ──────────────────────────────────────────────────────────────────────────────

func ordenDePrueba(id string) *orders.OrdenTienda {
	return &orders.OrdenTienda{
		ID:     id,
		Numero: "1042",
		Total:  decimal.RequireFromString("1210"),
		Receptor: arca.Receptor{
			RazonSocial:  "María García",
			CondicionIVA: entity.CondicionConsumidorFinal,
		},
		Items: []arca.ItemCalculo{
			{Descripcion: "Remera", Cantidad: decimal.NewFromInt(1), PrecioUnitario: decimal.RequireFromString("1210"), Alicuota: arca.Alicuota21},
		},
	}
}

func armarConciliador(t *testing.T, emisor *fakeEmisor) (*orders.Conciliador, *fakeOrdenes, *fakeClientes) {
	t.Helper()
	tienda := &fakeTienda{ordenes: map[string]*orders.OrdenTienda{
		"9001": ordenDePrueba("9001"),
	}}
	ordenesRepo := newFakeOrdenes()
	facturas := newFakeFacturasIdx()
	clientes := newFakeClientes()
	log := logger.New(logger.Config{Env: "development", Level: "error"})
	conciliador := orders.NewConciliador(tienda, emisorConCaptura(emisor, facturas), ordenesRepo, facturas, clientes, log)
	return conciliador, ordenesRepo, clientes
}

// emisorConCaptura indexa las facturas emitidas para que el conciliador pueda
// resolverlas por ID, como hace el repo real.
func emisorConCaptura(emisor *fakeEmisor, idx *fakeFacturasIdx) orders.Emisor {
	return emisorFunc(func(ctx context.Context, pedido *billing.PedidoEmision) (*entity.Factura, error) {
		fac, err := emisor.Emitir(ctx, pedido)
		if err != nil {
			return nil, err
		}
		idx.guardar(fac)
		return fac, nil
	})
}

type emisorFunc func(ctx context.Context, pedido *billing.PedidoEmision) (*entity.Factura, error)

func (f emisorFunc) Emitir(ctx context.Context, pedido *billing.PedidoEmision) (*entity.Factura, error) {
	return f(ctx, pedido)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestFacturar_EmiteYVincula(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, ordenesRepo, _ := armarConciliador(t, emisor)

	factura, err := conciliador.Facturar(context.Background(), "9001", nil)
	require.NoError(t, err)
	assert.Equal(t, "9001", factura.OrdenID)

	link, err := ordenesRepo.ObtenerPorOrdenID(context.Background(), "9001")
	require.NoError(t, err)
	assert.Equal(t, entity.OrdenFacturada, link.Estado)
	assert.Equal(t, factura.ID, link.FacturaID)
	assert.Equal(t, 1, link.Intentos)
}

func TestFacturar_WebhookDuplicadoNoReemite(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, _, _ := armarConciliador(t, emisor)
	ctx := context.Background()

	primera, err := conciliador.Facturar(ctx, "9001", nil)
	require.NoError(t, err)

	segunda, err := conciliador.Facturar(ctx, "9001", nil)
	require.NoError(t, err)

	assert.Equal(t, primera.ID, segunda.ID, "la segunda llamada devuelve la misma factura")
	assert.Equal(t, int64(1), emisor.llamadas.Load(), "se emitió exactamente una vez")
}

// Dos callers concurrentes para la misma orden: ambos terminan observando la
// misma factura y el emisor corre una sola vez.
func TestFacturar_ConcurrenciaMismaOrden(t *testing.T) {
	emisor := &fakeEmisor{demora: 30 * time.Millisecond}
	conciliador, _, _ := armarConciliador(t, emisor)

	var wg sync.WaitGroup
	resultados := make(chan *entity.Factura, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fac, err := conciliador.Facturar(context.Background(), "9001", nil)
			if assert.NoError(t, err) {
				resultados <- fac
			}
		}()
	}
	wg.Wait()
	close(resultados)

	var ids []string
	for fac := range resultados {
		ids = append(ids, fac.ID)
	}
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1], "ambos callers observan la misma factura")
	assert.Equal(t, int64(1), emisor.llamadas.Load())
}

func TestFacturar_ReintentoTrasFallaTransitoria(t *testing.T) {
	emisor := &fakeEmisor{falla: fmt.Errorf("WS caído: %w", domain.ErrARCANoDisponible)}
	conciliador, ordenesRepo, _ := armarConciliador(t, emisor)
	ctx := context.Background()

	_, err := conciliador.Facturar(ctx, "9001", nil)
	require.ErrorIs(t, err, domain.ErrARCANoDisponible)

	link, err := ordenesRepo.ObtenerPorOrdenID(ctx, "9001")
	require.NoError(t, err)
	assert.Equal(t, entity.OrdenConError, link.Estado)
	assert.Contains(t, link.UltimoError, "WS caído")

	// El webhook reintenta: la fila con error se retoma y se emite.
	emisor.falla = nil
	factura, err := conciliador.Facturar(ctx, "9001", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, factura.CAE)

	link, err = ordenesRepo.ObtenerPorOrdenID(ctx, "9001")
	require.NoError(t, err)
	assert.Equal(t, entity.OrdenFacturada, link.Estado)
	assert.Equal(t, 2, link.Intentos)
}

func TestFacturar_OverrideDeReceptor(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, _, _ := armarConciliador(t, emisor)

	_, err := conciliador.Facturar(context.Background(), "9001", &orders.Override{
		RazonSocial:  "Acme SRL",
		CUIT:         "30-71234567-8",
		CondicionIVA: entity.CondicionResponsableInscripto,
	})
	require.NoError(t, err)

	require.Len(t, emisor.recibidos, 1)
	receptor := emisor.recibidos[0].Receptor
	assert.Equal(t, "Acme SRL", receptor.RazonSocial, "el override pisa los datos de la orden")
	assert.Equal(t, entity.CondicionResponsableInscripto, receptor.CondicionIVA)
}

// Un receptor con CUIT válido queda dado de alta como cliente y la factura
// sale vinculada; una segunda orden del mismo CUIT reutiliza el cliente.
func TestFacturar_VinculaClientePorCUIT(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, _, clientes := armarConciliador(t, emisor)
	ctx := context.Background()

	override := &orders.Override{
		RazonSocial:  "Acme SRL",
		CUIT:         "20409378472",
		CondicionIVA: entity.CondicionResponsableInscripto,
	}
	_, err := conciliador.Facturar(ctx, "9001", override)
	require.NoError(t, err)

	cliente, err := clientes.BuscarPorCUIT(ctx, "20409378472")
	require.NoError(t, err, "el cliente debe quedar dado de alta")
	assert.Equal(t, "Acme SRL", cliente.RazonSocial)

	require.Len(t, emisor.recibidos, 1)
	assert.Equal(t, cliente.ID, emisor.recibidos[0].ClienteID, "la factura sale vinculada al cliente")
}

// El receptor sin CUIT (consumidor final) no genera cliente.
func TestFacturar_ConsumidorFinalSinVinculo(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, _, clientes := armarConciliador(t, emisor)

	_, err := conciliador.Facturar(context.Background(), "9001", nil)
	require.NoError(t, err)

	clientes.mu.Lock()
	defer clientes.mu.Unlock()
	assert.Empty(t, clientes.porCUIT, "un consumidor final sin CUIT no da de alta clientes")
	require.Len(t, emisor.recibidos, 1)
	assert.Empty(t, emisor.recibidos[0].ClienteID)
}

// El tipo de comprobante del override viaja como hint al emisor.
func TestFacturar_OverrideDeTipoComprobante(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, _, _ := armarConciliador(t, emisor)

	_, err := conciliador.Facturar(context.Background(), "9001", &orders.Override{
		RazonSocial:     "Acme SRL",
		CUIT:            "20409378472",
		CondicionIVA:    entity.CondicionResponsableInscripto,
		TipoComprobante: arca.FacturaA,
	})
	require.NoError(t, err)

	require.Len(t, emisor.recibidos, 1)
	assert.Equal(t, arca.FacturaA, emisor.recibidos[0].TipoComprobante)
}

// Una falla de persistencia después del CAE parquea la orden en conciliación
// pendiente: el webhook duplicado no vuelve a emitir (el CAE ya existe y un
// reintento duplicaría el comprobante).
func TestFacturar_PersistenciaPostCAENoSeReintenta(t *testing.T) {
	emisor := &fakeEmisor{falla: &domain.PersistenciaPostCAE{
		TipoComprobante: arca.FacturaB,
		PuntoVenta:      1,
		Numero:          7,
		CAE:             "75000011112222",
		Causa:           fmt.Errorf("db caída"),
	}}
	conciliador, ordenesRepo, _ := armarConciliador(t, emisor)
	ctx := context.Background()

	_, err := conciliador.Facturar(ctx, "9001", nil)
	var pErr *domain.PersistenciaPostCAE
	require.ErrorAs(t, err, &pErr)

	link, err := ordenesRepo.ObtenerPorOrdenID(ctx, "9001")
	require.NoError(t, err)
	assert.Equal(t, entity.OrdenConciliacionPendiente, link.Estado, "la orden queda fuera del circuito de reintentos")
	assert.Contains(t, link.UltimoError, "75000011112222", "el CAE huérfano queda registrado para conciliar")

	// El reenvío del webhook corta antes de llegar al emisor.
	emisor.falla = nil
	_, err = conciliador.Facturar(ctx, "9001", nil)
	require.ErrorIs(t, err, domain.ErrConflicto)
	assert.Equal(t, int64(1), emisor.llamadas.Load(), "un CAE huérfano jamás dispara una segunda emisión")
}

func TestFacturar_MarcadorEnProcesoDeOtraReplica(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, ordenesRepo, _ := armarConciliador(t, emisor)
	ctx := context.Background()

	// Otra réplica dejó el marcador (o quedó huérfano tras un crash).
	_, err := ordenesRepo.Reclamar(ctx, &entity.OrdenFacturadaLink{
		ID:      uuid.New().String(),
		OrdenID: "9001",
		Estado:  entity.OrdenEnProceso,
	})
	require.NoError(t, err)

	_, err = conciliador.Facturar(ctx, "9001", nil)
	assert.ErrorIs(t, err, domain.ErrOrdenEnProceso)
	assert.Zero(t, emisor.llamadas.Load())
}

func TestFacturar_OrdenInexistente(t *testing.T) {
	emisor := &fakeEmisor{}
	conciliador, ordenesRepo, _ := armarConciliador(t, emisor)

	_, err := conciliador.Facturar(context.Background(), "no-existe", nil)
	require.Error(t, err)

	// La falla quedó registrada y es reintentable.
	link, lerr := ordenesRepo.ObtenerPorOrdenID(context.Background(), "no-existe")
	require.NoError(t, lerr)
	assert.Equal(t, entity.OrdenConError, link.Estado)
}
