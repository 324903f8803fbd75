package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
)

var _ repository.OrdenFacturadaRepository = (*OrdenFacturadaRepo)(nil)

// OrdenFacturadaRepo implementación de OrdenFacturadaRepository. El índice
// único sobre orden_id hace de barrera de idempotencia entre réplicas.
type OrdenFacturadaRepo struct {
	q Querier
}

// NewOrdenFacturadaRepository construye el adaptador.
func NewOrdenFacturadaRepository(q Querier) *OrdenFacturadaRepo {
	return &OrdenFacturadaRepo{q: q}
}

const columnasOrden = `
	id, orden_id, numero_orden, factura_id, estado, ultimo_error, intentos,
	override_razon_social, override_cuit, override_condicion_iva, created_at, updated_at`

// Reclamar inserta el marcador en_proceso solo si la orden no tiene fila.
// Devuelve true si este caller ganó el reclamo.
func (r *OrdenFacturadaRepo) Reclamar(ctx context.Context, l *entity.OrdenFacturadaLink) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO ordenes_facturadas
			(id, orden_id, numero_orden, estado, intentos,
			 override_razon_social, override_cuit, override_condicion_iva, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $7, $8, $8)
		ON CONFLICT (orden_id) DO NOTHING`,
		l.ID, l.OrdenID, l.NumeroOrden, entity.OrdenEnProceso,
		l.OverrideRazonSocial, l.OverrideCUIT, l.OverrideCondicionIVA, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("reclamar orden: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Retomar pasa una fila con error de vuelta a en_proceso. El WHERE sobre el
// estado hace que solo un caller gane el reintento.
func (r *OrdenFacturadaRepo) Retomar(ctx context.Context, ordenID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE ordenes_facturadas
		SET estado = $2, intentos = intentos + 1, updated_at = $3
		WHERE orden_id = $1 AND estado = $4`,
		ordenID, entity.OrdenEnProceso, time.Now(), entity.OrdenConError,
	)
	if err != nil {
		return false, fmt.Errorf("retomar orden: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ObtenerPorOrdenID devuelve el vínculo de la orden.
func (r *OrdenFacturadaRepo) ObtenerPorOrdenID(ctx context.Context, ordenID string) (*entity.OrdenFacturadaLink, error) {
	row := r.q.QueryRow(ctx, `SELECT `+columnasOrden+` FROM ordenes_facturadas WHERE orden_id = $1`, ordenID)
	return escanearOrden(row)
}

// MarcarFacturada cierra el vínculo con la factura emitida.
func (r *OrdenFacturadaRepo) MarcarFacturada(ctx context.Context, ordenID, facturaID string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE ordenes_facturadas
		SET estado = $2, factura_id = $3, ultimo_error = '', updated_at = $4
		WHERE orden_id = $1`,
		ordenID, entity.OrdenFacturada, facturaID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("marcar orden facturada: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoEncontrado
	}
	return nil
}

// MarcarError registra la falla dejando la fila reintentable.
func (r *OrdenFacturadaRepo) MarcarError(ctx context.Context, ordenID, mensaje string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE ordenes_facturadas
		SET estado = $2, ultimo_error = $3, updated_at = $4
		WHERE orden_id = $1`,
		ordenID, entity.OrdenConError, mensaje, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("marcar orden con error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoEncontrado
	}
	return nil
}

// MarcarConciliacionPendiente parquea la fila en el estado terminal de
// conciliación manual. Retomar no la levanta: solo sale de ahí a mano.
func (r *OrdenFacturadaRepo) MarcarConciliacionPendiente(ctx context.Context, ordenID, mensaje string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE ordenes_facturadas
		SET estado = $2, ultimo_error = $3, updated_at = $4
		WHERE orden_id = $1`,
		ordenID, entity.OrdenConciliacionPendiente, mensaje, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("marcar orden con conciliación pendiente: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoEncontrado
	}
	return nil
}

// Listar lista vínculos, opcionalmente filtrados por estado.
func (r *OrdenFacturadaRepo) Listar(ctx context.Context, estado string, limit, offset int) ([]*entity.OrdenFacturadaLink, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+columnasOrden+` FROM ordenes_facturadas
		WHERE ($1 = '' OR estado = $1)
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`, estado, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ordenes: %w", err)
	}
	defer rows.Close()

	var list []*entity.OrdenFacturadaLink
	for rows.Next() {
		l, err := escanearOrden(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

func escanearOrden(row pgx.Row) (*entity.OrdenFacturadaLink, error) {
	var l entity.OrdenFacturadaLink
	var facturaID *string
	err := row.Scan(&l.ID, &l.OrdenID, &l.NumeroOrden, &facturaID, &l.Estado, &l.UltimoError, &l.Intentos,
		&l.OverrideRazonSocial, &l.OverrideCUIT, &l.OverrideCondicionIVA, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoEncontrado
		}
		return nil, fmt.Errorf("scan orden facturada: %w", err)
	}
	if facturaID != nil {
		l.FacturaID = *facturaID
	}
	return &l, nil
}
