package arca

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/internal/domain/entity"
	"github.com/damianpacheco/facturacion-arca/pkg/cuit"
)

// Receptor es el perfil fiscal del receptor al momento de emitir. Es un
// snapshot propio de la emisión: no depende del CRUD de clientes.
type Receptor struct {
	RazonSocial  string
	CUIT         string
	CondicionIVA string
}

// Saneado normaliza el receptor: CUIT sin guiones y, si el CUIT falta o no
// pasa el dígito verificador, degrada a Consumidor Final (política del
// original, pendiente de confirmar contra normativa vigente).
func (r Receptor) Saneado() Receptor {
	out := r
	out.CUIT = cuit.Normalizar(r.CUIT)
	if out.RazonSocial == "" {
		out.RazonSocial = entity.CondicionConsumidorFinal
	}
	if !cuit.Valido(out.CUIT) {
		out.CUIT = ""
		out.CondicionIVA = entity.CondicionConsumidorFinal
	}
	if out.CondicionIVA == "" {
		out.CondicionIVA = entity.CondicionConsumidorFinal
	}
	return out
}

// ElegirComprobante resuelve el tipo de comprobante a emitir.
//
//   - hint != 0: se respeta si es compatible con la condición del receptor
//     (A solo a Responsable Inscripto; B nunca a Responsable Inscripto).
//   - hint == 0: Responsable Inscripto → Factura A; resto → Factura B.
//   - Emisor monotributista: siempre letra C, para cualquier receptor.
//
// El receptor debe venir ya saneado (ver Receptor.Saneado).
func ElegirComprobante(hint int, receptor Receptor, emisorMonotributista bool) (int, error) {
	if emisorMonotributista {
		if hint != 0 && !EsComprobanteC(hint) {
			return 0, fmt.Errorf("%w: un emisor monotributista solo emite comprobantes C", domain.ErrValidacion)
		}
		if hint != 0 {
			return hint, nil
		}
		return FacturaC, nil
	}

	esRI := receptor.CondicionIVA == entity.CondicionResponsableInscripto

	if hint != 0 {
		if !TipoValido(hint) {
			return 0, fmt.Errorf("%w: tipo de comprobante %d desconocido", domain.ErrValidacion, hint)
		}
		if EsComprobanteA(hint) && !esRI {
			return 0, fmt.Errorf(
				"%w: la Factura A solo puede emitirse a clientes Responsable Inscripto; %q es %q (use Factura B)",
				domain.ErrValidacion, receptor.RazonSocial, receptor.CondicionIVA)
		}
		if !EsComprobanteA(hint) && !EsComprobanteC(hint) && esRI {
			return 0, fmt.Errorf(
				"%w: la Factura B no puede emitirse a clientes Responsable Inscripto; use Factura A para %q",
				domain.ErrValidacion, receptor.RazonSocial)
		}
		return hint, nil
	}

	if esRI {
		return FacturaA, nil
	}
	return FacturaB, nil
}

// ElegirDocReceptor resuelve tipo y número de documento del receptor.
// 80=CUIT, 96=DNI, 99=Consumidor Final sin identificar (solo por debajo del
// límite de monto).
func ElegirDocReceptor(receptor Receptor, total decimal.Decimal) (tipoDoc int, nroDoc int64) {
	limpio := cuit.Normalizar(receptor.CUIT)
	if receptor.CondicionIVA == entity.CondicionConsumidorFinal {
		if total.LessThan(LimiteCFSinIdentificar) || limpio == "" {
			return DocConsumidorFinal, 0
		}
		return DocDNI, aDigitos(limpio)
	}
	if limpio == "" {
		return DocConsumidorFinal, 0
	}
	return DocCUIT, aDigitos(limpio)
}

func aDigitos(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
