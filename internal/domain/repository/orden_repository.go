package repository

import (
	"context"

	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// OrdenFacturadaRepository define el puerto de persistencia del vínculo
// orden → factura. Es la tabla de idempotencia de la conciliación de órdenes.
type OrdenFacturadaRepository interface {
	// Reclamar intenta insertar el marcador en_proceso para la orden.
	// Devuelve (true, nil) si este caller ganó el reclamo, (false, nil) si ya
	// existía una fila (en proceso, facturada o con error).
	Reclamar(ctx context.Context, link *entity.OrdenFacturadaLink) (bool, error)

	// Retomar pasa una fila en estado error de vuelta a en_proceso,
	// incrementando intentos. Devuelve false si la fila no estaba en error.
	Retomar(ctx context.Context, ordenID string) (bool, error)

	ObtenerPorOrdenID(ctx context.Context, ordenID string) (*entity.OrdenFacturadaLink, error)

	// MarcarFacturada cierra el vínculo con la factura emitida.
	MarcarFacturada(ctx context.Context, ordenID, facturaID string) error

	// MarcarError registra la falla dejando la fila reintentable.
	MarcarError(ctx context.Context, ordenID, mensaje string) error

	// MarcarConciliacionPendiente deja la fila en estado terminal: hay un CAE
	// emitido sin factura local y el reintento automático queda vedado.
	MarcarConciliacionPendiente(ctx context.Context, ordenID, mensaje string) error

	Listar(ctx context.Context, estado string, limit, offset int) ([]*entity.OrdenFacturadaLink, error)
}
