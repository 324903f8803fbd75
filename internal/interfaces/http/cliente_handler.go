package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/application/dto"
)

// ClienteHandler maneja el CRUD de clientes (protegido).
type ClienteHandler struct {
	uc *billing.ClientesUseCase
}

// NewClienteHandler construye el handler.
func NewClienteHandler(uc *billing.ClientesUseCase) *ClienteHandler {
	return &ClienteHandler{uc: uc}
}

// Create da de alta un cliente.
// POST /api/clientes
func (h *ClienteHandler) Create(c *fiber.Ctx) error {
	var in dto.CrearClienteRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	cliente, err := h.uc.Crear(c.Context(), in)
	if err != nil {
		return responderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cliente)
}

// GetByID obtiene un cliente.
// GET /api/clientes/:id
func (h *ClienteHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	cliente, err := h.uc.Obtener(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(cliente)
}

// List lista clientes paginados.
// GET /api/clientes
func (h *ClienteHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	clientes, err := h.uc.Listar(c.Context(), page)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(clientes)
}
