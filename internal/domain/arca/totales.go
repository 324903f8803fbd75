package arca

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
)

// ItemCalculo es una línea de entrada para el cómputo de totales.
type ItemCalculo struct {
	Descripcion    string
	Cantidad       decimal.Decimal
	PrecioUnitario decimal.Decimal
	Alicuota       int // código ARCA de alícuota
}

// DetalleAlicuota acumula base e importe de IVA para una alícuota.
type DetalleAlicuota struct {
	Codigo  int
	Base    decimal.Decimal
	Importe decimal.Decimal
}

// Totales es el resultado del cómputo de impuestos de un comprobante.
// Los montos internos conservan precisión completa; el redondeo half-even a
// 2 decimales ocurre recién al persistir o armar la solicitud al WS.
type Totales struct {
	Subtotal     decimal.Decimal
	TotalIVA     decimal.Decimal
	Total        decimal.Decimal
	Discriminado bool

	// ivaPorAlicuota solo se puebla en modo discriminado (letras A y B).
	ivaPorAlicuota map[int]*DetalleAlicuota
}

// toleranciaTotal es la diferencia admitida al conciliar un total declarado
// por el caller contra el total calculado (redondeos de la plataforma origen).
var toleranciaTotal = decimal.RequireFromString("0.05")

var cien = decimal.NewFromInt(100)

// CalcularTotales computa subtotal, IVA por alícuota y total para el tipo de
// comprobante dado. El modo de presentación (discriminado o no) lo decide el
// tipo, nunca el caller:
//
//   - Letras A y B: total = subtotal + Σ IVA, con detalle por alícuota.
//   - Letra C: el IVA va embebido en el precio; total = subtotal y el IVA
//     informado es cero, aunque las alícuotas se validan igual.
func CalcularTotales(items []ItemCalculo, tipoComprobante int) (*Totales, error) {
	if !TipoValido(tipoComprobante) {
		return nil, fmt.Errorf("%w: tipo de comprobante %d desconocido", domain.ErrValidacion, tipoComprobante)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: el comprobante debe tener al menos un ítem", domain.ErrValidacion)
	}

	t := &Totales{
		Discriminado:   Discrimina(tipoComprobante),
		ivaPorAlicuota: make(map[int]*DetalleAlicuota),
	}

	for i, item := range items {
		if !item.Cantidad.GreaterThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: ítem %d: la cantidad debe ser mayor a cero", domain.ErrValidacion, i+1)
		}
		if item.PrecioUnitario.LessThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: ítem %d: el precio unitario no puede ser negativo", domain.ErrValidacion, i+1)
		}
		porcentaje, ok := PorcentajeAlicuota(item.Alicuota)
		if !ok {
			return nil, fmt.Errorf("%w: ítem %d: alícuota de IVA %d desconocida", domain.ErrValidacion, i+1, item.Alicuota)
		}

		lineaSubtotal := item.Cantidad.Mul(item.PrecioUnitario)
		t.Subtotal = t.Subtotal.Add(lineaSubtotal)

		if !t.Discriminado {
			continue // alícuota validada; el IVA queda embebido en el precio
		}

		lineaIVA := lineaSubtotal.Mul(porcentaje).Div(cien)
		det := t.ivaPorAlicuota[item.Alicuota]
		if det == nil {
			det = &DetalleAlicuota{Codigo: item.Alicuota}
			t.ivaPorAlicuota[item.Alicuota] = det
		}
		det.Base = det.Base.Add(lineaSubtotal)
		det.Importe = det.Importe.Add(lineaIVA)
		t.TotalIVA = t.TotalIVA.Add(lineaIVA)
	}

	if t.Discriminado {
		t.Total = t.Subtotal.Add(t.TotalIVA)
	} else {
		t.Total = t.Subtotal
	}
	return t, nil
}

// IVA devuelve el importe acumulado de una alícuota (cero si no hubo líneas o
// el comprobante no discrimina).
func (t *Totales) IVA(codigoAlicuota int) decimal.Decimal {
	if det, ok := t.ivaPorAlicuota[codigoAlicuota]; ok {
		return det.Importe
	}
	return decimal.Zero
}

// DetalleIVA devuelve el detalle por alícuota con importes positivos,
// redondeado a 2 decimales (formato que espera el WS). Vacío para letra C.
func (t *Totales) DetalleIVA() []DetalleAlicuota {
	var detalle []DetalleAlicuota
	// Orden estable por código para que la solicitud sea determinística.
	for _, codigo := range []int{Alicuota0, Alicuota105, Alicuota21, Alicuota27} {
		det, ok := t.ivaPorAlicuota[codigo]
		if !ok || !det.Importe.GreaterThan(decimal.Zero) {
			continue
		}
		detalle = append(detalle, DetalleAlicuota{
			Codigo:  det.Codigo,
			Base:    det.Base.RoundBank(2),
			Importe: det.Importe.RoundBank(2),
		})
	}
	return detalle
}

// Redondeados devuelve subtotal, IVA total y total redondeados half-even a 2
// decimales, listos para persistir.
func (t *Totales) Redondeados() (subtotal, totalIVA, total decimal.Decimal) {
	return t.Subtotal.RoundBank(2), t.TotalIVA.RoundBank(2), t.Total.RoundBank(2)
}

// ValidarTotalDeclarado concilia un total provisto por el caller (por ejemplo
// el total de una orden) contra el total calculado. Diferencias por encima de
// la tolerancia se reportan como error de validación, nunca se corrigen.
func (t *Totales) ValidarTotalDeclarado(declarado decimal.Decimal) error {
	diff := t.Total.Sub(declarado).Abs()
	if diff.GreaterThan(toleranciaTotal) {
		return fmt.Errorf("%w: el total declarado (%s) no coincide con el calculado (%s)",
			domain.ErrValidacion, declarado.StringFixed(2), t.Total.RoundBank(2).StringFixed(2))
	}
	return nil
}
