package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/application/orders"
	infraarca "github.com/damianpacheco/facturacion-arca/internal/infrastructure/arca"
	infrapdf "github.com/damianpacheco/facturacion-arca/internal/infrastructure/pdf"
	"github.com/damianpacheco/facturacion-arca/internal/infrastructure/postgres"
	"github.com/damianpacheco/facturacion-arca/internal/infrastructure/tiendanube"
	httpRouter "github.com/damianpacheco/facturacion-arca/internal/interfaces/http"
	"github.com/damianpacheco/facturacion-arca/pkg/config"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("entorno_arca", cfg.ARCA.Entorno).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	facturaRepo := postgres.NewFacturaRepository(pool)
	clienteRepo := postgres.NewClienteRepository(pool)
	contadorRepo := postgres.NewContadorRepository(pool)
	ordenRepo := postgres.NewOrdenFacturadaRepository(pool)

	// Autorizador: simulado en dev, WSAA + WSFE reales en homo/prod.
	var autorizador billing.AutorizadorARCA
	if cfg.ARCA.Entorno == infraarca.EntornoDev {
		log.Warn().Msg("entorno dev: los CAE son simulados, sin valor fiscal")
		autorizador = infraarca.NewAutorizadorSimulado(log)
	} else {
		cert, key, err := infraarca.CargarCertificado(cfg.ARCA.CertPath, cfg.ARCA.CertKeyPath, cfg.ARCA.CertPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("cargar certificado WSAA")
		}
		wsaa, err := infraarca.NewClienteWSAA(cfg.ARCA.Entorno, "", cert, key, log)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente WSAA")
		}
		wsfe, err := infraarca.NewClienteWSFE(infraarca.ConfigCliente{
			Entorno: cfg.ARCA.Entorno,
			CUIT:    cfg.ARCA.CUIT,
		}, wsaa, log)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente WSFE")
		}
		autorizador = wsfe
	}

	coordinador := billing.NewCoordinadorSecuencia(contadorRepo, autorizador, log)
	emisor := billing.NewEmisorFacturas(facturaRepo, coordinador, autorizador, billing.EmisorConfig{
		PuntoVenta:     cfg.ARCA.PuntoVenta,
		Monotributista: cfg.ARCA.EmisorMonotributista,
	}, log)
	clientesUC := billing.NewClientesUseCase(clienteRepo)

	condicionEmisor := "IVA Responsable Inscripto"
	if cfg.ARCA.EmisorMonotributista {
		condicionEmisor = "Responsable Monotributo"
	}
	pdfGenerator := infrapdf.NewMarotoPDFGenerator(infrapdf.DatosEmisor{
		RazonSocial:  cfg.ARCA.RazonSocial,
		CUIT:         cfg.ARCA.CUIT,
		CondicionIVA: condicionEmisor,
	})
	pdfUC := billing.NewPDFUseCase(facturaRepo, pdfGenerator)

	tienda := tiendanube.NewCliente(tiendanube.Config{
		StoreID:     cfg.Tiendanube.StoreID,
		AccessToken: cfg.Tiendanube.AccessToken,
	}, log)
	conciliador := orders.NewConciliador(tienda, emisor, ordenRepo, facturaRepo, clienteRepo, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación ARCA API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Emisor:       emisor,
		ClientesUC:   clientesUC,
		PDFUC:        pdfUC,
		Conciliador:  conciliador,
		Facturas:     facturaRepo,
		Autorizador:  autorizador,
		PuntoVenta:   cfg.ARCA.PuntoVenta,
		TipoDefecto:  cfg.ARCA.TipoDefecto,
		AutoFacturar: cfg.Tiendanube.AutoFacturar,
		JWTSecret:    cfg.JWT.Secret,
		Log:          log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
