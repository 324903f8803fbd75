package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/damianpacheco/facturacion-arca/internal/application/dto"
	"github.com/damianpacheco/facturacion-arca/internal/application/orders"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// OrdenHandler maneja la facturación de órdenes de Tiendanube (protegido).
type OrdenHandler struct {
	conciliador *orders.Conciliador
}

// NewOrdenHandler construye el handler.
func NewOrdenHandler(conciliador *orders.Conciliador) *OrdenHandler {
	return &OrdenHandler{conciliador: conciliador}
}

// Facturar emite (idempotente) la factura de una orden.
// POST /api/ordenes/:id/facturar
func (h *OrdenHandler) Facturar(c *fiber.Ctx) error {
	ordenID := c.Params("id")
	if ordenID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id de orden requerido"})
	}

	var in dto.FacturarOrdenRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
	}

	var override *orders.Override
	if in.RazonSocial != "" || in.CUIT != "" || in.CondicionIVA != "" || in.TipoComprobante != 0 {
		override = &orders.Override{
			RazonSocial:     in.RazonSocial,
			CUIT:            in.CUIT,
			CondicionIVA:    in.CondicionIVA,
			TipoComprobante: in.TipoComprobante,
		}
	}

	factura, err := h.conciliador.Facturar(c.Context(), ordenID, override)
	if err != nil {
		return responderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(facturaResponse(factura, nil))
}

// Estado consulta el estado de conciliación de una orden.
// GET /api/ordenes/:id
func (h *OrdenHandler) Estado(c *fiber.Ctx) error {
	ordenID := c.Params("id")
	if ordenID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id de orden requerido"})
	}
	link, err := h.conciliador.Estado(c.Context(), ordenID)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(ordenResponse(link))
}

// List lista las órdenes conciliadas, opcionalmente filtradas por estado.
// GET /api/ordenes?estado=error
func (h *OrdenHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	estado := c.Query("estado")

	links, err := h.conciliador.Listar(c.Context(), estado, page.Limit, page.Offset)
	if err != nil {
		return responderError(c, err)
	}
	out := make([]*dto.OrdenFacturadaResponse, 0, len(links))
	for _, l := range links {
		out = append(out, ordenResponse(l))
	}
	return c.JSON(out)
}

func ordenResponse(l *entity.OrdenFacturadaLink) *dto.OrdenFacturadaResponse {
	return &dto.OrdenFacturadaResponse{
		OrdenID:     l.OrdenID,
		NumeroOrden: l.NumeroOrden,
		Estado:      l.Estado,
		FacturaID:   l.FacturaID,
		UltimoError: l.UltimoError,
		Intentos:    l.Intentos,
	}
}
