package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/application/dto"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
)

// FacturaHandler maneja la emisión y consulta de facturas (protegido).
type FacturaHandler struct {
	emisor   *billing.EmisorFacturas
	clientes *billing.ClientesUseCase
	pdf      *billing.PDFUseCase
	facturas repository.FacturaRepository
}

// NewFacturaHandler construye el handler.
func NewFacturaHandler(
	emisor *billing.EmisorFacturas,
	clientes *billing.ClientesUseCase,
	pdf *billing.PDFUseCase,
	facturas repository.FacturaRepository,
) *FacturaHandler {
	return &FacturaHandler{emisor: emisor, clientes: clientes, pdf: pdf, facturas: facturas}
}

// Emitir emite una factura manual.
// POST /api/facturas
func (h *FacturaHandler) Emitir(c *fiber.Ctx) error {
	var in dto.EmitirFacturaRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	pedido := &billing.PedidoEmision{
		ClienteID:       in.ClienteID,
		TipoComprobante: in.TipoComprobante,
		Concepto:        in.Concepto,
		TotalDeclarado:  in.TotalDeclarado,
	}

	if in.ClienteID != "" {
		razonSocial, nroCUIT, condicion, err := h.clientes.ReceptorDe(c.Context(), in.ClienteID)
		if err != nil {
			return responderError(c, err)
		}
		pedido.Receptor = arca.Receptor{RazonSocial: razonSocial, CUIT: nroCUIT, CondicionIVA: condicion}
	} else {
		pedido.Receptor = arca.Receptor{RazonSocial: in.RazonSocial, CUIT: in.CUIT, CondicionIVA: in.CondicionIVA}
	}

	pedido.Items = make([]arca.ItemCalculo, len(in.Items))
	for i, item := range in.Items {
		pedido.Items[i] = arca.ItemCalculo{
			Descripcion:    item.Descripcion,
			Cantidad:       item.Cantidad,
			PrecioUnitario: item.PrecioUnitario,
			Alicuota:       item.AlicuotaIVA,
		}
	}

	factura, err := h.emisor.Emitir(c.Context(), pedido)
	if err != nil {
		return responderError(c, err)
	}

	items, _ := h.facturas.ItemsDe(c.Context(), factura.ID)
	return c.Status(fiber.StatusCreated).JSON(facturaResponse(factura, items))
}

// GetByID obtiene el detalle completo de una factura.
// GET /api/facturas/:id
func (h *FacturaHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	factura, err := h.facturas.ObtenerPorID(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	items, err := h.facturas.ItemsDe(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	return c.JSON(facturaResponse(factura, items))
}

// List lista facturas paginadas.
// GET /api/facturas
func (h *FacturaHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	facturas, err := h.facturas.Listar(c.Context(), page.Limit, page.Offset)
	if err != nil {
		return responderError(c, err)
	}
	out := make([]*dto.FacturaResponse, 0, len(facturas))
	for _, f := range facturas {
		out = append(out, facturaResponse(f, nil))
	}
	return c.JSON(out)
}

// DescargarPDF descarga la representación gráfica del comprobante.
// GET /api/facturas/:id/pdf
func (h *FacturaHandler) DescargarPDF(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	pdfBytes, filename, err := h.pdf.DescargarPDF(c.Context(), id)
	if err != nil {
		return responderError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(pdfBytes)
}

// facturaResponse mapea la entidad al DTO de respuesta.
func facturaResponse(f *entity.Factura, items []*entity.ItemFactura) *dto.FacturaResponse {
	out := &dto.FacturaResponse{
		ID:              f.ID,
		ClienteID:       f.ClienteID,
		OrdenID:         f.OrdenID,
		TipoComprobante: f.TipoComprobante,
		PuntoVenta:      f.PuntoVenta,
		Numero:          f.Numero,
		NumeroCompleto:  f.NumeroCompleto(),
		Fecha:           f.Fecha.Format("2006-01-02"),
		CAE:             f.CAE,
		Estado:          f.Estado,
		Subtotal:        f.Subtotal,
		IVA:             f.IVA21.Add(f.IVA105).Add(f.IVA27),
		Total:           f.Total,
		Observaciones:   f.Observaciones,
	}
	if !f.VencimientoCAE.IsZero() {
		out.VencimientoCAE = f.VencimientoCAE.Format("2006-01-02")
	}
	for _, it := range items {
		out.Items = append(out.Items, dto.ItemFacturaResponse{
			ID:             it.ID,
			Descripcion:    it.Descripcion,
			Cantidad:       it.Cantidad,
			PrecioUnitario: it.PrecioUnitario,
			AlicuotaIVA:    it.AlicuotaIVA,
			Subtotal:       it.Subtotal,
		})
	}
	return out
}
