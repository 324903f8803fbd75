package cuit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/damianpacheco/facturacion-arca/pkg/cuit"
)

func TestValido_CUITsReales(t *testing.T) {
	casos := []struct {
		cuit   string
		valido bool
	}{
		{"20409378472", true},     // persona física, dígito verificador 2
		{"20-40937847-2", true},   // mismo CUIT con guiones
		{"20123456786", true},     // verificador calculado = 6
		{"20123456780", false},    // verificador incorrecto
		{"20409378471", false},    // último dígito alterado
		{"2040937847", false},     // 10 dígitos
		{"204093784722", false},   // 12 dígitos
		{"20A09378472", false},    // caracter no numérico
		{"", false},               // vacío
		{"20-00000001-0", false},  // resto 1: sin verificador asignable
	}
	for _, c := range casos {
		assert.Equalf(t, c.valido, cuit.Valido(c.cuit), "CUIT %q", c.cuit)
	}
}

func TestNormalizar(t *testing.T) {
	assert.Equal(t, "20409378472", cuit.Normalizar("20-40937847-2"))
	assert.Equal(t, "20409378472", cuit.Normalizar("20 40937847 2"))
	assert.Equal(t, "20409378472", cuit.Normalizar("20409378472"))
}

func TestFormatear(t *testing.T) {
	assert.Equal(t, "20-40937847-2", cuit.Formatear("20409378472"))
	assert.Equal(t, "20-40937847-2", cuit.Formatear("20-40937847-2"))
	// Largo incorrecto: se devuelve tal cual
	assert.Equal(t, "123", cuit.Formatear("123"))
}
