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

var _ repository.ClienteRepository = (*ClienteRepo)(nil)

// ClienteRepo implementación de ClienteRepository.
type ClienteRepo struct {
	q Querier
}

// NewClienteRepository construye el adaptador. Pasar pool o tx (Querier).
func NewClienteRepository(q Querier) *ClienteRepo {
	return &ClienteRepo{q: q}
}

const columnasCliente = `id, razon_social, cuit, condicion_iva, domicilio, email, telefono, created_at, updated_at`

// Crear persiste un nuevo cliente.
func (r *ClienteRepo) Crear(ctx context.Context, c *entity.Cliente) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO clientes (`+columnasCliente+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.RazonSocial, c.CUIT, c.CondicionIVA, c.Domicilio, c.Email, c.Telefono, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ya existe un cliente con CUIT %s", domain.ErrConflicto, c.CUIT)
		}
		return fmt.Errorf("insert cliente: %w", err)
	}
	return nil
}

// ObtenerPorID obtiene un cliente por ID.
func (r *ClienteRepo) ObtenerPorID(ctx context.Context, id string) (*entity.Cliente, error) {
	row := r.q.QueryRow(ctx, `SELECT `+columnasCliente+` FROM clientes WHERE id = $1`, id)
	return escanearCliente(row)
}

// BuscarPorCUIT obtiene un cliente por CUIT normalizado (sin guiones).
func (r *ClienteRepo) BuscarPorCUIT(ctx context.Context, cuit string) (*entity.Cliente, error) {
	row := r.q.QueryRow(ctx, `SELECT `+columnasCliente+` FROM clientes WHERE cuit = $1`, cuit)
	return escanearCliente(row)
}

// Actualizar guarda los cambios de un cliente existente.
func (r *ClienteRepo) Actualizar(ctx context.Context, c *entity.Cliente) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE clientes
		SET razon_social = $2, cuit = $3, condicion_iva = $4, domicilio = $5,
		    email = $6, telefono = $7, updated_at = $8
		WHERE id = $1`,
		c.ID, c.RazonSocial, c.CUIT, c.CondicionIVA, c.Domicilio, c.Email, c.Telefono, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update cliente: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoEncontrado
	}
	return nil
}

// Listar lista clientes con paginación, ordenados por razón social.
func (r *ClienteRepo) Listar(ctx context.Context, limit, offset int) ([]*entity.Cliente, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+columnasCliente+` FROM clientes
		ORDER BY razon_social LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list clientes: %w", err)
	}
	defer rows.Close()

	var list []*entity.Cliente
	for rows.Next() {
		c, err := escanearCliente(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func escanearCliente(row pgx.Row) (*entity.Cliente, error) {
	var c entity.Cliente
	err := row.Scan(&c.ID, &c.RazonSocial, &c.CUIT, &c.CondicionIVA,
		&c.Domicilio, &c.Email, &c.Telefono, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoEncontrado
		}
		return nil, fmt.Errorf("scan cliente: %w", err)
	}
	return &c, nil
}
