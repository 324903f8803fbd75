package repository

import (
	"context"

	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// FacturaRepository define el puerto de persistencia para facturas.
// La implementación vive en infrastructure.
type FacturaRepository interface {
	// Crear persiste la factura y sus ítems en una única transacción.
	// Se invoca recién después de obtener el CAE: una factura nunca se
	// persiste como autorizada sin CAE.
	Crear(ctx context.Context, factura *entity.Factura, items []*entity.ItemFactura) error

	ObtenerPorID(ctx context.Context, id string) (*entity.Factura, error)

	// ObtenerPorNumero busca por la clave fiscal (tipo, punto de venta, número).
	ObtenerPorNumero(ctx context.Context, tipoComprobante, puntoVenta int, numero int64) (*entity.Factura, error)

	ItemsDe(ctx context.Context, facturaID string) ([]*entity.ItemFactura, error)

	// Listar devuelve facturas ordenadas por fecha de creación descendente.
	Listar(ctx context.Context, limit, offset int) ([]*entity.Factura, error)
}
