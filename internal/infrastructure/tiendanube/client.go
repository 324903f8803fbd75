// Package tiendanube implementa el cliente de la API de Tiendanube para
// recuperar órdenes y mapearlas al formato que consume la facturación.
package tiendanube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/application/orders"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

const (
	baseURL = "https://api.tiendanube.com/v1"

	// La API pide identificar la app en cada llamada.
	userAgent = "facturacion-arca (soporte@facturacion-arca.com.ar)"
)

// Config credenciales de la tienda.
type Config struct {
	StoreID     string
	AccessToken string
	URL         string // override del endpoint; vacío = API pública
}

// Cliente implementa orders.ClienteTienda contra la API REST de Tiendanube.
type Cliente struct {
	httpClient *http.Client
	cfg        Config
	log        *logger.Logger
}

// NewCliente construye el cliente.
func NewCliente(cfg Config, log *logger.Logger) *Cliente {
	if cfg.URL == "" {
		cfg.URL = baseURL
	}
	return &Cliente{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
		log:        log,
	}
}

// ordenAPI es el subconjunto del JSON de la orden que usa la facturación.
type ordenAPI struct {
	ID       json.Number `json:"id"`
	Number   json.Number `json:"number"`
	Total    string      `json:"total"`
	Customer struct {
		Name           string `json:"name"`
		Identification string `json:"identification"` // CUIT o DNI
	} `json:"customer"`
	BillingName string `json:"billing_name"`
	Products    []struct {
		Name     string      `json:"name"`
		Quantity json.Number `json:"quantity"`
		Price    string      `json:"price"`
	} `json:"products"`
}

// ObtenerOrden recupera la orden y la normaliza. Los precios de Tiendanube
// vienen con IVA incluido; se mantienen tal cual y la alícuota por defecto es
// 21% (la tienda no discrimina alícuotas por producto).
func (c *Cliente) ObtenerOrden(ctx context.Context, ordenID string) (*orders.OrdenTienda, error) {
	url := fmt.Sprintf("%s/%s/orders/%s", c.cfg.URL, c.cfg.StoreID, ordenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creando request de orden: %w", err)
	}
	// Tiendanube usa el header propio Authentication, no Authorization.
	req.Header.Set("Authentication", "bearer "+c.cfg.AccessToken)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamando a Tiendanube: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("leyendo orden %s: %w", ordenID, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("orden %s: %w", ordenID, domain.ErrNoEncontrado)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("orden %s: %w: revisar el access token de la tienda", ordenID, domain.ErrNoAutorizado)
	default:
		return nil, fmt.Errorf("Tiendanube devolvió HTTP %d para la orden %s: %s", resp.StatusCode, ordenID, raw)
	}

	var orden ordenAPI
	if err := json.Unmarshal(raw, &orden); err != nil {
		return nil, fmt.Errorf("parseando orden %s: %w", ordenID, err)
	}
	return c.normalizar(&orden)
}

func (c *Cliente) normalizar(orden *ordenAPI) (*orders.OrdenTienda, error) {
	total, err := decimal.NewFromString(orden.Total)
	if err != nil {
		return nil, fmt.Errorf("total de la orden ilegible %q: %w", orden.Total, err)
	}

	razonSocial := orden.BillingName
	if razonSocial == "" {
		razonSocial = orden.Customer.Name
	}

	items := make([]arca.ItemCalculo, 0, len(orden.Products))
	for i, p := range orden.Products {
		precio, perr := decimal.NewFromString(p.Price)
		if perr != nil {
			return nil, fmt.Errorf("precio ilegible %q en el producto %d: %w", p.Price, i+1, perr)
		}
		cantidad, qerr := decimal.NewFromString(p.Quantity.String())
		if qerr != nil {
			return nil, fmt.Errorf("cantidad ilegible %q en el producto %d: %w", p.Quantity, i+1, qerr)
		}
		items = append(items, arca.ItemCalculo{
			Descripcion:    p.Name,
			Cantidad:       cantidad,
			PrecioUnitario: precio,
			Alicuota:       arca.Alicuota21,
		})
	}

	return &orders.OrdenTienda{
		ID:     orden.ID.String(),
		Numero: orden.Number.String(),
		Total:  total,
		Receptor: arca.Receptor{
			RazonSocial: razonSocial,
			CUIT:        orden.Customer.Identification,
			// La tienda no captura la condición frente al IVA: se asume
			// Consumidor Final salvo override manual.
			CondicionIVA: entity.CondicionConsumidorFinal,
		},
		Items: items,
	}, nil
}
