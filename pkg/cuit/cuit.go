// Package cuit valida y formatea CUIT/CUIL argentinos (11 dígitos con dígito
// verificador módulo 11).
package cuit

import "strings"

// multiplicadores para el cálculo del dígito verificador.
var multiplicadores = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// Normalizar elimina guiones y espacios del CUIT.
func Normalizar(cuit string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, cuit)
}

// Valido verifica formato (11 dígitos) y dígito verificador del CUIT.
func Valido(cuit string) bool {
	limpio := Normalizar(cuit)
	if len(limpio) != 11 {
		return false
	}
	suma := 0
	for i := 0; i < 10; i++ {
		d := limpio[i]
		if d < '0' || d > '9' {
			return false
		}
		suma += int(d-'0') * multiplicadores[i]
	}
	ultimo := limpio[10]
	if ultimo < '0' || ultimo > '9' {
		return false
	}

	resto := suma % 11
	var verificador int
	switch resto {
	case 0:
		verificador = 0
	case 1:
		// Resto 1 no tiene dígito verificador asignable: CUIT inválido.
		return false
	default:
		verificador = 11 - resto
	}
	return int(ultimo-'0') == verificador
}

// Formatear devuelve el CUIT con guiones (XX-XXXXXXXX-X).
// Si el largo no es 11 dígitos, devuelve el valor sin modificar.
func Formatear(cuit string) string {
	limpio := Normalizar(cuit)
	if len(limpio) != 11 {
		return cuit
	}
	return limpio[:2] + "-" + limpio[2:10] + "-" + limpio[10:]
}
