package repository

import (
	"context"

	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// ContadorRepository define el puerto de persistencia de los contadores de
// numeración. El acceso concurrente lo serializa el coordinador de secuencias
// en memoria; este puerto solo lee y escribe el último número confirmado.
type ContadorRepository interface {
	// Obtener devuelve el contador de la serie (tipo, punto de venta).
	// Si la serie nunca emitió devuelve domain.ErrNoEncontrado.
	Obtener(ctx context.Context, tipoComprobante, puntoVenta int) (*entity.ContadorSecuencia, error)

	// Guardar hace upsert del contador con el último número confirmado.
	Guardar(ctx context.Context, contador *entity.ContadorSecuencia) error
}
