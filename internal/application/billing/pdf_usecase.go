package billing

import (
	"context"
	"fmt"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
)

// GeneradorPDF es el puerto hacia la generación de la representación gráfica.
type GeneradorPDF interface {
	GenerarFacturaPDF(ctx context.Context, factura *entity.Factura, items []*entity.ItemFactura) ([]byte, error)
}

// PDFUseCase genera la representación gráfica (PDF) de una factura. Solo se
// permite para facturas con CAE: sin autorización no hay documento legal que
// representar.
type PDFUseCase struct {
	facturas  repository.FacturaRepository
	generador GeneradorPDF
}

// NewPDFUseCase construye el caso de uso.
func NewPDFUseCase(facturas repository.FacturaRepository, generador GeneradorPDF) *PDFUseCase {
	return &PDFUseCase{facturas: facturas, generador: generador}
}

// DescargarPDF recupera la factura con sus ítems y genera el PDF.
//
// Retorna:
//   - (pdfBytes, filename, nil) si todo sale bien.
//   - domain.ErrNoEncontrado si la factura no existe.
//   - domain.ErrValidacion si la factura no tiene CAE.
func (uc *PDFUseCase) DescargarPDF(ctx context.Context, facturaID string) (pdfBytes []byte, filename string, err error) {
	factura, err := uc.facturas.ObtenerPorID(ctx, facturaID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener factura: %w", err)
	}
	if factura.CAE == "" {
		return nil, "", fmt.Errorf("%w: la factura %s no tiene CAE", domain.ErrValidacion, factura.NumeroCompleto())
	}

	items, err := uc.facturas.ItemsDe(ctx, facturaID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener ítems: %w", err)
	}

	pdfBytes, err = uc.generador.GenerarFacturaPDF(ctx, factura, items)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}

	filename = fmt.Sprintf("factura_%s.pdf", factura.NumeroCompleto())
	return pdfBytes, filename, nil
}
