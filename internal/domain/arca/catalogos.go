// Package arca contiene los catálogos y reglas de dominio de la facturación
// electrónica ARCA (ex AFIP): tipos de comprobante, alícuotas de IVA,
// condiciones frente al IVA (RG 5616) y el cómputo de totales.
package arca

import (
	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// Tipos de comprobante según tabla de ARCA.
const (
	FacturaA     = 1
	NotaDebitoA  = 2
	NotaCreditoA = 3
	FacturaB     = 6
	NotaDebitoB  = 7
	NotaCreditoB = 8
	FacturaC     = 11
	NotaDebitoC  = 12
	NotaCreditoC = 13
)

// Códigos de alícuota de IVA según tabla de ARCA.
const (
	Alicuota0   = 3 // 0%
	Alicuota105 = 4 // 10.5%
	Alicuota21  = 5 // 21%
	Alicuota27  = 6 // 27%
)

// Tipos de documento del receptor.
const (
	DocCUIT            = 80
	DocDNI             = 96
	DocConsumidorFinal = 99 // sin identificar
)

// Conceptos del comprobante.
const (
	ConceptoProductos           = 1
	ConceptoServicios           = 2
	ConceptoProductosYServicios = 3
)

// LimiteCFSinIdentificar es el monto a partir del cual un Consumidor Final
// debe identificarse con DNI (RG 5003, valor vigente en el original).
var LimiteCFSinIdentificar = decimal.NewFromInt(23265)

// porcentajes por código de alícuota.
var porcentajes = map[int]decimal.Decimal{
	Alicuota0:   decimal.Zero,
	Alicuota105: decimal.RequireFromString("10.5"),
	Alicuota21:  decimal.NewFromInt(21),
	Alicuota27:  decimal.NewFromInt(27),
}

// condición IVA del receptor → código ARCA (RG 5616).
var condicionesIVA = map[string]int{
	entity.CondicionResponsableInscripto: 1,
	entity.CondicionExento:               4,
	entity.CondicionConsumidorFinal:      5,
	entity.CondicionMonotributista:       6,
	entity.CondicionNoResponsable:        7,
}

// PorcentajeAlicuota devuelve el porcentaje asociado al código de alícuota.
// ok=false para códigos desconocidos (error de validación, nunca 0% implícito).
func PorcentajeAlicuota(codigo int) (decimal.Decimal, bool) {
	p, ok := porcentajes[codigo]
	return p, ok
}

// CodigoCondicionIVA devuelve el código RG 5616 para la condición del receptor.
// Condiciones desconocidas caen en Consumidor Final (5), igual que el original.
func CodigoCondicionIVA(condicion string) int {
	if c, ok := condicionesIVA[condicion]; ok {
		return c
	}
	return 5
}

// TipoValido indica si el código es un tipo de comprobante soportado.
func TipoValido(tipo int) bool {
	switch tipo {
	case FacturaA, NotaDebitoA, NotaCreditoA,
		FacturaB, NotaDebitoB, NotaCreditoB,
		FacturaC, NotaDebitoC, NotaCreditoC:
		return true
	}
	return false
}

// ConceptoValido indica si el concepto es 1, 2 o 3.
func ConceptoValido(concepto int) bool {
	return concepto >= ConceptoProductos && concepto <= ConceptoProductosYServicios
}

// EsComprobanteC indica si el tipo pertenece a la letra C (emisor monotributista).
func EsComprobanteC(tipo int) bool {
	return tipo == FacturaC || tipo == NotaDebitoC || tipo == NotaCreditoC
}

// EsComprobanteA indica si el tipo pertenece a la letra A.
func EsComprobanteA(tipo int) bool {
	return tipo == FacturaA || tipo == NotaDebitoA || tipo == NotaCreditoA
}

// Discrimina indica si el comprobante lleva el IVA discriminado (letras A y B).
// Los comprobantes C llevan el IVA embebido en el precio: se informa
// ImpNeto = Total e ImpIVA = 0 aunque la alícuota se haya usado para validar.
func Discrimina(tipo int) bool {
	return !EsComprobanteC(tipo)
}
