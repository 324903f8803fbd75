package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/damianpacheco/facturacion-arca/internal/application/dto"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
)

// responderError traduce errores de dominio a respuestas HTTP. Todos los
// handlers pasan por acá para que un mismo error tenga siempre el mismo
// status y código.
func responderError(c *fiber.Ctx, err error) error {
	var rechazo *domain.RechazoARCA
	if errors.As(err, &rechazo) {
		obs := make([]dto.ObservacionDTO, 0, len(rechazo.Observaciones))
		for _, o := range rechazo.Observaciones {
			obs = append(obs, dto.ObservacionDTO{Codigo: o.Codigo, Mensaje: o.Mensaje})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Code:          "RECHAZO_ARCA",
			Message:       "ARCA rechazó el comprobante",
			Observaciones: obs,
		})
	}

	var postCAE *domain.PersistenciaPostCAE
	if errors.As(err, &postCAE) {
		// El CAE existe pero la factura no se guardó: 500 con el detalle
		// completo para conciliar a mano. Nunca reintentar automáticamente.
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:    "PERSISTENCIA_POST_CAE",
			Message: postCAE.Error(),
		})
	}

	switch {
	case errors.Is(err, domain.ErrValidacion):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNoEncontrado):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrConflicto):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrOrdenEnProceso):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ORDEN_EN_PROCESO", Message: err.Error()})
	case errors.Is(err, domain.ErrNoAutorizado):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()})
	case errors.Is(err, domain.ErrARCANoDisponible):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "ARCA_NO_DISPONIBLE", Message: "el servicio de ARCA no está disponible; reintente más tarde"})
	case errors.Is(err, domain.ErrSecuenciaDesincronizada):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "SECUENCIA_DESINCRONIZADA", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
