package http

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/damianpacheco/facturacion-arca/internal/application/dto"
	"github.com/damianpacheco/facturacion-arca/internal/application/orders"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// webhookTimeout acota el procesamiento en background de cada webhook.
const webhookTimeout = 2 * time.Minute

// WebhookHandler recibe los webhooks de Tiendanube. La respuesta debe ser
// inmediata (Tiendanube reintenta ante timeouts), así que la facturación corre
// en background; la idempotencia del conciliador absorbe los reenvíos.
type WebhookHandler struct {
	conciliador  *orders.Conciliador
	autoFacturar bool
	log          *logger.Logger
}

// NewWebhookHandler construye el handler.
func NewWebhookHandler(conciliador *orders.Conciliador, autoFacturar bool, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{conciliador: conciliador, autoFacturar: autoFacturar, log: log}
}

// Tiendanube procesa un webhook de la tienda.
// POST /webhooks/tiendanube
func (h *WebhookHandler) Tiendanube(c *fiber.Ctx) error {
	var in dto.WebhookTiendanube
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.ID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id de orden requerido"})
	}

	// Solo order/paid dispara facturación; el resto se acusa recibo y listo.
	// Una cancelación no revierte nada: la nota de crédito es un flujo manual.
	if in.Event == "order/cancelled" {
		h.log.Info().Int64("orden_id", in.ID).Msg("orden cancelada; sin acción automática")
		return c.JSON(fiber.Map{"status": "ignored"})
	}
	if in.Event != "order/paid" || !h.autoFacturar {
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	ordenID := strconv.FormatInt(in.ID, 10)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()

		factura, err := h.conciliador.Facturar(ctx, ordenID, nil)
		if err != nil {
			h.log.Error().Err(err).
				Str("orden_id", ordenID).
				Str("evento", in.Event).
				Msg("facturación automática fallida")
			return
		}
		h.log.Info().
			Str("orden_id", ordenID).
			Str("factura_id", factura.ID).
			Str("numero_completo", factura.NumeroCompleto()).
			Msg("orden facturada por webhook")
	}()

	return c.JSON(fiber.Map{"status": "accepted"})
}
