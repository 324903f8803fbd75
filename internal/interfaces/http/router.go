package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/application/orders"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Emisor       *billing.EmisorFacturas
	ClientesUC   *billing.ClientesUseCase
	PDFUC        *billing.PDFUseCase
	Conciliador  *orders.Conciliador
	Facturas     repository.FacturaRepository
	Autorizador  billing.AutorizadorARCA
	PuntoVenta   int
	TipoDefecto  int
	AutoFacturar bool
	JWTSecret    string
	Log          *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	// Webhooks (público: Tiendanube no manda JWT; la idempotencia y la
	// validación del payload hacen de barrera)
	webhookHandler := NewWebhookHandler(deps.Conciliador, deps.AutoFacturar, deps.Log)
	app.Post("/webhooks/tiendanube", webhookHandler.Tiendanube)

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	// Facturas (admin y operador)
	facturas := api.Group("/facturas", RequireRole(RolAdmin, RolOperador))
	facturaHandler := NewFacturaHandler(deps.Emisor, deps.ClientesUC, deps.PDFUC, deps.Facturas)
	facturas.Post("/", facturaHandler.Emitir)
	facturas.Get("/", facturaHandler.List)
	facturas.Get("/:id", facturaHandler.GetByID)
	facturas.Get("/:id/pdf", facturaHandler.DescargarPDF)

	// Órdenes de Tiendanube (admin y operador)
	ordenes := api.Group("/ordenes", RequireRole(RolAdmin, RolOperador))
	ordenHandler := NewOrdenHandler(deps.Conciliador)
	ordenes.Post("/:id/facturar", ordenHandler.Facturar)
	ordenes.Get("/", ordenHandler.List)
	ordenes.Get("/:id", ordenHandler.Estado)

	// Clientes (solo admin administra; operador puede consultar)
	clientes := api.Group("/clientes")
	clienteHandler := NewClienteHandler(deps.ClientesUC)
	clientes.Post("/", RequireRole(RolAdmin), clienteHandler.Create)
	clientes.Get("/", RequireRole(RolAdmin, RolOperador), clienteHandler.List)
	clientes.Get("/:id", RequireRole(RolAdmin, RolOperador), clienteHandler.GetByID)

	// Diagnóstico contra el WS de ARCA (solo admin)
	arcaGroup := api.Group("/arca", RequireRole(RolAdmin))
	arcaHandler := NewArcaHandler(deps.Autorizador, deps.PuntoVenta, deps.TipoDefecto)
	arcaGroup.Get("/ultimo-comprobante", arcaHandler.UltimoComprobante)
}
