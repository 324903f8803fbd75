package arca_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

func TestReceptorSaneado(t *testing.T) {
	t.Run("normaliza CUIT con guiones", func(t *testing.T) {
		r := arca.Receptor{
			RazonSocial:  "Acme SRL",
			CUIT:         "30-71234567-0",
			CondicionIVA: entity.CondicionResponsableInscripto,
		}
		s := r.Saneado()
		assert.NotContains(t, s.CUIT, "-")
		assert.Equal(t, entity.CondicionResponsableInscripto, s.CondicionIVA)
	})

	t.Run("CUIT invalido degrada a Consumidor Final", func(t *testing.T) {
		r := arca.Receptor{
			RazonSocial:  "Juan Pérez",
			CUIT:         "20-11111111-1", // dígito verificador incorrecto
			CondicionIVA: entity.CondicionResponsableInscripto,
		}
		s := r.Saneado()
		assert.Empty(t, s.CUIT, "el CUIT inválido se descarta")
		assert.Equal(t, entity.CondicionConsumidorFinal, s.CondicionIVA)
	})

	t.Run("sin datos queda como Consumidor Final anonimo", func(t *testing.T) {
		s := arca.Receptor{}.Saneado()
		assert.Equal(t, entity.CondicionConsumidorFinal, s.CondicionIVA)
		assert.NotEmpty(t, s.RazonSocial)
	})
}

func TestElegirComprobante(t *testing.T) {
	ri := arca.Receptor{RazonSocial: "Acme SRL", CUIT: "20409378472", CondicionIVA: entity.CondicionResponsableInscripto}
	cf := arca.Receptor{RazonSocial: "Consumidor Final", CondicionIVA: entity.CondicionConsumidorFinal}
	mono := arca.Receptor{RazonSocial: "Kiosco López", CUIT: "20123456786", CondicionIVA: entity.CondicionMonotributista}

	t.Run("automatico: RI recibe A, el resto B", func(t *testing.T) {
		tipo, err := arca.ElegirComprobante(0, ri, false)
		require.NoError(t, err)
		assert.Equal(t, arca.FacturaA, tipo)

		tipo, err = arca.ElegirComprobante(0, cf, false)
		require.NoError(t, err)
		assert.Equal(t, arca.FacturaB, tipo)

		tipo, err = arca.ElegirComprobante(0, mono, false)
		require.NoError(t, err)
		assert.Equal(t, arca.FacturaB, tipo, "monotributista receptor recibe B")
	})

	t.Run("hint compatible se respeta", func(t *testing.T) {
		tipo, err := arca.ElegirComprobante(arca.FacturaA, ri, false)
		require.NoError(t, err)
		assert.Equal(t, arca.FacturaA, tipo)
	})

	t.Run("A a no inscripto se rechaza", func(t *testing.T) {
		_, err := arca.ElegirComprobante(arca.FacturaA, cf, false)
		assert.ErrorIs(t, err, domain.ErrValidacion)
	})

	t.Run("B a inscripto se rechaza", func(t *testing.T) {
		_, err := arca.ElegirComprobante(arca.FacturaB, ri, false)
		assert.ErrorIs(t, err, domain.ErrValidacion)
	})

	t.Run("tipo desconocido se rechaza", func(t *testing.T) {
		_, err := arca.ElegirComprobante(99, cf, false)
		assert.ErrorIs(t, err, domain.ErrValidacion)
	})

	t.Run("emisor monotributista siempre emite C", func(t *testing.T) {
		tipo, err := arca.ElegirComprobante(0, ri, true)
		require.NoError(t, err)
		assert.Equal(t, arca.FacturaC, tipo, "letra C incluso para receptor inscripto")

		_, err = arca.ElegirComprobante(arca.FacturaA, ri, true)
		assert.ErrorIs(t, err, domain.ErrValidacion)

		tipo, err = arca.ElegirComprobante(arca.NotaCreditoC, cf, true)
		require.NoError(t, err)
		assert.Equal(t, arca.NotaCreditoC, tipo)
	})
}

func TestElegirDocReceptor(t *testing.T) {
	t.Run("con CUIT informa documento 80", func(t *testing.T) {
		r := arca.Receptor{CUIT: "20409378472", CondicionIVA: entity.CondicionResponsableInscripto}
		tipoDoc, nroDoc := arca.ElegirDocReceptor(r, dec("50000"))
		assert.Equal(t, arca.DocCUIT, tipoDoc)
		assert.Equal(t, int64(20409378472), nroDoc)
	})

	t.Run("consumidor final bajo el limite va sin identificar", func(t *testing.T) {
		r := arca.Receptor{CondicionIVA: entity.CondicionConsumidorFinal}
		tipoDoc, nroDoc := arca.ElegirDocReceptor(r, dec("10000"))
		assert.Equal(t, arca.DocConsumidorFinal, tipoDoc)
		assert.Zero(t, nroDoc)
	})

	t.Run("consumidor final sobre el limite se identifica con DNI", func(t *testing.T) {
		r := arca.Receptor{CUIT: "20409378472", CondicionIVA: entity.CondicionConsumidorFinal}
		tipoDoc, nroDoc := arca.ElegirDocReceptor(r, dec("30000"))
		assert.Equal(t, arca.DocDNI, tipoDoc)
		assert.Equal(t, int64(20409378472), nroDoc)
	})

	t.Run("consumidor final sobre el limite sin documento degrada a 99", func(t *testing.T) {
		r := arca.Receptor{CondicionIVA: entity.CondicionConsumidorFinal}
		tipoDoc, _ := arca.ElegirDocReceptor(r, dec("30000"))
		assert.Equal(t, arca.DocConsumidorFinal, tipoDoc)
	})
}

func TestCodigoCondicionIVA(t *testing.T) {
	assert.Equal(t, 1, arca.CodigoCondicionIVA(entity.CondicionResponsableInscripto))
	assert.Equal(t, 6, arca.CodigoCondicionIVA(entity.CondicionMonotributista))
	assert.Equal(t, 5, arca.CodigoCondicionIVA("algo raro"), "condición desconocida cae en Consumidor Final")
}
