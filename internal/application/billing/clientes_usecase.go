package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/damianpacheco/facturacion-arca/internal/application/dto"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/internal/domain/repository"
	"github.com/damianpacheco/facturacion-arca/pkg/cuit"
)

// ClientesUseCase casos de uso para el padrón local de clientes.
type ClientesUseCase struct {
	repo repository.ClienteRepository
}

// NewClientesUseCase construye el caso de uso.
func NewClientesUseCase(repo repository.ClienteRepository) *ClientesUseCase {
	return &ClientesUseCase{repo: repo}
}

// Crear da de alta un cliente. El CUIT se normaliza y valida si viene
// informado; un Consumidor Final puede no tener CUIT.
func (uc *ClientesUseCase) Crear(ctx context.Context, in dto.CrearClienteRequest) (*dto.ClienteResponse, error) {
	if in.RazonSocial == "" {
		return nil, fmt.Errorf("%w: la razón social es obligatoria", domain.ErrValidacion)
	}
	condicion := in.CondicionIVA
	if condicion == "" {
		condicion = entity.CondicionConsumidorFinal
	}

	nroCUIT := cuit.Normalizar(in.CUIT)
	if nroCUIT != "" {
		if !cuit.Valido(nroCUIT) {
			return nil, fmt.Errorf("%w: CUIT %q inválido", domain.ErrValidacion, in.CUIT)
		}
		existente, err := uc.repo.BuscarPorCUIT(ctx, nroCUIT)
		if err != nil && !errors.Is(err, domain.ErrNoEncontrado) {
			return nil, err
		}
		if existente != nil {
			return nil, fmt.Errorf("%w: ya existe un cliente con CUIT %s", domain.ErrConflicto, cuit.Formatear(nroCUIT))
		}
	} else if condicion != entity.CondicionConsumidorFinal {
		return nil, fmt.Errorf("%w: la condición %q requiere CUIT", domain.ErrValidacion, condicion)
	}

	now := time.Now()
	cliente := &entity.Cliente{
		ID:           uuid.New().String(),
		RazonSocial:  in.RazonSocial,
		CUIT:         nroCUIT,
		CondicionIVA: condicion,
		Domicilio:    in.Domicilio,
		Email:        in.Email,
		Telefono:     in.Telefono,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.Crear(ctx, cliente); err != nil {
		return nil, err
	}
	return clienteDTO(cliente), nil
}

// Obtener devuelve un cliente por ID.
func (uc *ClientesUseCase) Obtener(ctx context.Context, id string) (*dto.ClienteResponse, error) {
	cliente, err := uc.repo.ObtenerPorID(ctx, id)
	if err != nil {
		return nil, err
	}
	return clienteDTO(cliente), nil
}

// Listar lista clientes paginados.
func (uc *ClientesUseCase) Listar(ctx context.Context, page dto.PageRequest) ([]*dto.ClienteResponse, error) {
	page.DefaultPage()
	list, err := uc.repo.Listar(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ClienteResponse, 0, len(list))
	for _, c := range list {
		out = append(out, clienteDTO(c))
	}
	return out, nil
}

// ReceptorDe arma el perfil fiscal del receptor para una emisión a partir de
// un cliente guardado.
func (uc *ClientesUseCase) ReceptorDe(ctx context.Context, clienteID string) (razonSocial, nroCUIT, condicionIVA string, err error) {
	cliente, err := uc.repo.ObtenerPorID(ctx, clienteID)
	if err != nil {
		return "", "", "", err
	}
	return cliente.RazonSocial, cliente.CUIT, cliente.CondicionIVA, nil
}

func clienteDTO(c *entity.Cliente) *dto.ClienteResponse {
	return &dto.ClienteResponse{
		ID:           c.ID,
		RazonSocial:  c.RazonSocial,
		CUIT:         c.CUIT,
		CondicionIVA: c.CondicionIVA,
		Domicilio:    c.Domicilio,
		Email:        c.Email,
		Telefono:     c.Telefono,
	}
}
