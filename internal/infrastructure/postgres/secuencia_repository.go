package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
)

var _ repository.ContadorRepository = (*ContadorRepo)(nil)

// ContadorRepo implementación de ContadorRepository. La exclusión entre
// emisiones la da el coordinador en memoria; acá solo se respalda el último
// número confirmado de cada serie.
type ContadorRepo struct {
	q Querier
}

// NewContadorRepository construye el adaptador.
func NewContadorRepository(q Querier) *ContadorRepo {
	return &ContadorRepo{q: q}
}

// Obtener devuelve el contador de la serie (tipo, punto de venta).
func (r *ContadorRepo) Obtener(ctx context.Context, tipo, pv int) (*entity.ContadorSecuencia, error) {
	var c entity.ContadorSecuencia
	err := r.q.QueryRow(ctx, `
		SELECT tipo_comprobante, punto_venta, ultimo_numero, actualizado_en
		FROM contadores_secuencia
		WHERE tipo_comprobante = $1 AND punto_venta = $2`,
		tipo, pv,
	).Scan(&c.TipoComprobante, &c.PuntoVenta, &c.UltimoNumero, &c.ActualizadoEn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoEncontrado
		}
		return nil, fmt.Errorf("get contador: %w", err)
	}
	return &c, nil
}

// Guardar hace upsert del contador. GREATEST evita retroceder el respaldo si
// llegara una escritura vieja fuera de orden.
func (r *ContadorRepo) Guardar(ctx context.Context, c *entity.ContadorSecuencia) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO contadores_secuencia (tipo_comprobante, punto_venta, ultimo_numero, actualizado_en)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tipo_comprobante, punto_venta)
		DO UPDATE SET ultimo_numero = GREATEST(contadores_secuencia.ultimo_numero, EXCLUDED.ultimo_numero),
		              actualizado_en = EXCLUDED.actualizado_en`,
		c.TipoComprobante, c.PuntoVenta, c.UltimoNumero, c.ActualizadoEn,
	)
	if err != nil {
		return fmt.Errorf("upsert contador: %w", err)
	}
	return nil
}
