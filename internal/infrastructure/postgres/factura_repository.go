package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
)

var _ repository.FacturaRepository = (*FacturaRepo)(nil)

// FacturaRepo implementación de FacturaRepository sobre PostgreSQL.
// Crear necesita el pool (abre su propia transacción); las lecturas usan el
// mismo pool como Querier.
type FacturaRepo struct {
	pool *pgxpool.Pool
}

// NewFacturaRepository construye el adaptador.
func NewFacturaRepository(pool *pgxpool.Pool) *FacturaRepo {
	return &FacturaRepo{pool: pool}
}

const columnasFactura = `
	id, cliente_id, orden_id, tipo_comprobante, punto_venta, numero, fecha,
	cae, vencimiento_cae, estado,
	receptor_razon_social, receptor_cuit, receptor_condicion_iva,
	subtotal, iva_21, iva_105, iva_27, total, concepto, observaciones, created_at`

// Crear persiste la factura con sus ítems en una única transacción: una
// factura autorizada jamás queda a medias en la DB.
func (r *FacturaRepo) Crear(ctx context.Context, f *entity.Factura, items []*entity.ItemFactura) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO facturas (`+columnasFactura+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		f.ID, textoONulo(f.ClienteID), textoONulo(f.OrdenID),
		f.TipoComprobante, f.PuntoVenta, f.Numero, f.Fecha,
		f.CAE, f.VencimientoCAE, f.Estado,
		f.ReceptorRazonSocial, f.ReceptorCUIT, f.ReceptorCondicionIVA,
		f.Subtotal, f.IVA21, f.IVA105, f.IVA27, f.Total, f.Concepto, f.Observaciones, f.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ya existe la factura %s", domain.ErrConflicto, f.NumeroCompleto())
		}
		return fmt.Errorf("insert factura: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO factura_items (id, factura_id, descripcion, cantidad, precio_unitario, alicuota_iva, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			item.ID, f.ID, item.Descripcion, item.Cantidad, item.PrecioUnitario, item.AlicuotaIVA, item.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("insert item de factura: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit factura: %w", err)
	}
	return nil
}

// ObtenerPorID obtiene una factura por su ID.
func (r *FacturaRepo) ObtenerPorID(ctx context.Context, id string) (*entity.Factura, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columnasFactura+` FROM facturas WHERE id = $1`, id)
	return escanearFactura(row)
}

// ObtenerPorNumero obtiene una factura por su clave fiscal.
func (r *FacturaRepo) ObtenerPorNumero(ctx context.Context, tipo, pv int, numero int64) (*entity.Factura, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+columnasFactura+` FROM facturas
		WHERE tipo_comprobante = $1 AND punto_venta = $2 AND numero = $3`,
		tipo, pv, numero)
	return escanearFactura(row)
}

// ItemsDe devuelve las líneas de la factura en el orden de carga.
func (r *FacturaRepo) ItemsDe(ctx context.Context, facturaID string) ([]*entity.ItemFactura, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, factura_id, descripcion, cantidad, precio_unitario, alicuota_iva, subtotal
		FROM factura_items WHERE factura_id = $1 ORDER BY id`, facturaID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*entity.ItemFactura
	for rows.Next() {
		var it entity.ItemFactura
		if err := rows.Scan(&it.ID, &it.FacturaID, &it.Descripcion, &it.Cantidad,
			&it.PrecioUnitario, &it.AlicuotaIVA, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// Listar devuelve facturas por fecha de creación descendente.
func (r *FacturaRepo) Listar(ctx context.Context, limit, offset int) ([]*entity.Factura, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+columnasFactura+` FROM facturas
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list facturas: %w", err)
	}
	defer rows.Close()

	var list []*entity.Factura
	for rows.Next() {
		f, err := escanearFactura(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func escanearFactura(row pgx.Row) (*entity.Factura, error) {
	var f entity.Factura
	var clienteID, ordenID *string
	err := row.Scan(
		&f.ID, &clienteID, &ordenID, &f.TipoComprobante, &f.PuntoVenta, &f.Numero, &f.Fecha,
		&f.CAE, &f.VencimientoCAE, &f.Estado,
		&f.ReceptorRazonSocial, &f.ReceptorCUIT, &f.ReceptorCondicionIVA,
		&f.Subtotal, &f.IVA21, &f.IVA105, &f.IVA27, &f.Total, &f.Concepto, &f.Observaciones, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoEncontrado
		}
		return nil, fmt.Errorf("scan factura: %w", err)
	}
	if clienteID != nil {
		f.ClienteID = *clienteID
	}
	if ordenID != nil {
		f.OrdenID = *ordenID
	}
	return &f, nil
}

// textoONulo mapea string vacío a NULL (FKs opcionales).
func textoONulo(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
