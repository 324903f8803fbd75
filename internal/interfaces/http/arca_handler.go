package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/application/dto"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
)

// ArcaHandler expone consultas de diagnóstico contra el WS (protegido, solo
// admin): sirven para verificar conectividad y comparar la numeración local
// contra la de ARCA.
type ArcaHandler struct {
	autorizador billing.AutorizadorARCA
	pvDefecto   int
	tipoDefecto int
}

// NewArcaHandler construye el handler.
func NewArcaHandler(autorizador billing.AutorizadorARCA, pvDefecto, tipoDefecto int) *ArcaHandler {
	return &ArcaHandler{autorizador: autorizador, pvDefecto: pvDefecto, tipoDefecto: tipoDefecto}
}

// UltimoComprobante consulta el último número autorizado de una serie.
// GET /api/arca/ultimo-comprobante?tipo=6&punto_venta=1
func (h *ArcaHandler) UltimoComprobante(c *fiber.Ctx) error {
	tipo := c.QueryInt("tipo", h.tipoDefecto)
	pv := c.QueryInt("punto_venta", h.pvDefecto)
	if !arca.TipoValido(tipo) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "tipo de comprobante desconocido"})
	}
	if pv <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "punto de venta inválido"})
	}

	ultimo, err := h.autorizador.UltimoAutorizado(c.Context(), pv, tipo)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(fiber.Map{
		"tipo_comprobante": tipo,
		"punto_venta":      pv,
		"ultimo_numero":    ultimo,
	})
}
