package repository

import (
	"context"

	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// ClienteRepository define el puerto de persistencia para Cliente (DIP).
type ClienteRepository interface {
	Crear(ctx context.Context, cliente *entity.Cliente) error
	ObtenerPorID(ctx context.Context, id string) (*entity.Cliente, error)
	BuscarPorCUIT(ctx context.Context, cuit string) (*entity.Cliente, error)
	Actualizar(ctx context.Context, cliente *entity.Cliente) error
	Listar(ctx context.Context, limit, offset int) ([]*entity.Cliente, error)
}
