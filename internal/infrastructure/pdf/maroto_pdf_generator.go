// Package pdf implementa la representación gráfica del comprobante electrónico
// ARCA (RG 4291, con el QR obligatorio de la RG 4892).
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + CUIT  │  Letra + N° + Fecha          │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RECEPTOR: Razón social + CUIT + Condición IVA               │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Descripción | P.Unit | IVA | Subtotal         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Neto / IVA por alícuota / TOTAL                    │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: CAE + Vencimiento + QR ARCA                         │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/domain/arca"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 20, Green: 45, Blue: 90}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// DatosEmisor son los datos fiscales fijos del emisor que van en el encabezado
// y en el QR. Salen de la configuración, no de la base.
type DatosEmisor struct {
	RazonSocial  string
	CUIT         int64
	Domicilio    string
	CondicionIVA string
}

// MarotoPDFGenerator implementa billing.GeneradorPDF usando Maroto v2.
type MarotoPDFGenerator struct {
	emisor DatosEmisor
}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator(emisor DatosEmisor) *MarotoPDFGenerator {
	return &MarotoPDFGenerator{emisor: emisor}
}

// GenerarFacturaPDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerarFacturaPDF(_ context.Context, f *entity.Factura, items []*entity.ItemFactura) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Factura "+f.NumeroCompleto(), true).
		WithAuthor(g.emisor.RazonSocial, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(g.headerRow(f))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(receptorRow(f))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, r := range tableItemRows(items) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalesRow(f))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range g.footerRows(f) {
		m.AddRows(r)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor (izq), letra + número + fecha (der).
func (g *MarotoPDFGenerator) headerRow(f *entity.Factura) core.Row {
	return row.New(22).Add(
		col.New(7).Add(
			text.New(g.emisor.RazonSocial, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("CUIT: %d", g.emisor.CUIT), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
			text.New(nonEmpty(g.emisor.Domicilio, "—")+"   |   "+nonEmpty(g.emisor.CondicionIVA, "—"), props.Text{
				Size: 8, Top: 15, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(nombreComprobante(f.TipoComprobante), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(letraComprobante(f.TipoComprobante)+"  "+f.NumeroCompleto(), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+f.Fecha.Format("02/01/2006"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// receptorRow: snapshot fiscal del receptor al momento de la emisión.
func receptorRow(f *entity.Factura) core.Row {
	doc := f.ReceptorCUIT
	if doc == "" {
		doc = "Consumidor Final"
	}
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(f.ReceptorRazonSocial, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("CUIT/Doc: %s   |   Condición IVA: %s", doc, f.ReceptorCondicionIVA),
				props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de ítems.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("P. Unitario", 2, align.Right),
		h("IVA%", 1, align.Center),
		h("Subtotal", 3, align.Right),
	)
}

// tableItemRows: una fila por línea de la factura.
func tableItemRows(items []*entity.ItemFactura) []core.Row {
	result := make([]core.Row, 0, len(items))
	for _, it := range items {
		pct, _ := arca.PorcentajeAlicuota(it.AlicuotaIVA)
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				it.Cantidad.String(),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(5).Add(text.New(
				it.Descripcion,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				"$ "+it.PrecioUnitario.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(1).Add(text.New(
				pct.String()+"%",
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(3).Add(text.New(
				"$ "+it.Subtotal.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalesRow: neto, IVA por alícuota (solo letras A y B) y total.
func totalesRow(f *entity.Factura) core.Row {
	type par struct{ etiqueta, valor string }
	var pares []par
	if arca.Discrimina(f.TipoComprobante) {
		pares = append(pares, par{"Importe neto:", "$ " + f.Subtotal.StringFixed(2)})
		for _, iva := range []struct {
			etiqueta string
			monto    decimal.Decimal
		}{
			{"IVA 21%:", f.IVA21},
			{"IVA 10.5%:", f.IVA105},
			{"IVA 27%:", f.IVA27},
		} {
			if !iva.monto.IsZero() {
				pares = append(pares, par{iva.etiqueta, "$ " + iva.monto.StringFixed(2)})
			}
		}
	}

	alto := float64(8 + 5*len(pares) + 8)
	labels := make([]core.Component, 0, len(pares)+1)
	valores := make([]core.Component, 0, len(pares)+1)
	top := 1.0
	for _, p := range pares {
		labels = append(labels, text.New(p.etiqueta, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: top,
		}))
		valores = append(valores, text.New(p.valor, props.Text{
			Size: 9, Align: align.Right, Right: 1, Top: top,
		}))
		top += 5
	}
	labels = append(labels, text.New("TOTAL:", props.Text{
		Style: fontstyle.Bold, Size: 11, Align: align.Right,
		Color: colorPrimary, Right: 2, Top: top + 1,
	}))
	valores = append(valores, text.New("$ "+f.Total.StringFixed(2), props.Text{
		Style: fontstyle.Bold, Size: 11, Align: align.Right,
		Color: colorPrimary, Right: 1, Top: top + 1,
	}))

	return row.New(alto).Add(
		col.New(4),
		col.New(4).Add(labels...),
		col.New(4).Add(valores...),
	)
}

// footerRows: CAE + vencimiento + QR de verificación.
func (g *MarotoPDFGenerator) footerRows(f *entity.Factura) []core.Row {
	rows := []core.Row{
		row.New(10).Add(col.New(12).Add(
			text.New("CAE: "+f.CAE, props.Text{
				Style: fontstyle.Bold, Size: 9, Top: 1,
			}),
			text.New("Vencimiento CAE: "+f.VencimientoCAE.Format("02/01/2006"), props.Text{
				Size: 8, Top: 6, Color: colorGray,
			}),
		)),
	}

	if qr := g.datosQR(f); qr != "" {
		rows = append(rows, row.New(42).Add(
			col.New(3).Add(code.NewQr(qr, props.Rect{Percent: 95, Center: true})),
			col.New(9).Add(
				text.New("Comprobante Autorizado", props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 6, Left: 3, Color: colorPrimary,
				}),
				text.New("Escanee el código QR para verificar este comprobante en el sitio de ARCA.", props.Text{
					Size: 8, Top: 13, Left: 3, Color: colorGray,
				}),
			),
		))
	}

	return rows
}

// datosQR arma la URL del QR fiscal (RG 4892): el payload es un JSON en
// base64 con los datos de cabecera del comprobante.
func (g *MarotoPDFGenerator) datosQR(f *entity.Factura) string {
	tipoDoc, nroDoc := arca.ElegirDocReceptor(arca.Receptor{
		RazonSocial:  f.ReceptorRazonSocial,
		CUIT:         f.ReceptorCUIT,
		CondicionIVA: f.ReceptorCondicionIVA,
	}, f.Total)

	importe, _ := f.Total.Round(2).Float64()
	payload := map[string]any{
		"ver":        1,
		"fecha":      f.Fecha.Format("2006-01-02"),
		"cuit":       g.emisor.CUIT,
		"ptoVta":     f.PuntoVenta,
		"tipoCmp":    f.TipoComprobante,
		"nroCmp":     f.Numero,
		"importe":    importe,
		"moneda":     "PES",
		"ctz":        1,
		"tipoDocRec": tipoDoc,
		"nroDocRec":  nroDoc,
		"tipoCodAut": "E",
		"codAut":     f.CAE,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return "https://www.afip.gob.ar/fe/qr/?p=" + base64.StdEncoding.EncodeToString(raw)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func letraComprobante(tipo int) string {
	switch {
	case arca.EsComprobanteA(tipo):
		return "A"
	case arca.EsComprobanteC(tipo):
		return "C"
	default:
		return "B"
	}
}

func nombreComprobante(tipo int) string {
	switch tipo {
	case arca.NotaDebitoA, arca.NotaDebitoB, arca.NotaDebitoC:
		return "NOTA DE DÉBITO"
	case arca.NotaCreditoA, arca.NotaCreditoB, arca.NotaCreditoC:
		return "NOTA DE CRÉDITO"
	default:
		return "FACTURA ELECTRÓNICA"
	}
}
