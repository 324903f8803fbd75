package entity

import "time"

// Condiciones frente al IVA del receptor.
const (
	CondicionResponsableInscripto = "Responsable Inscripto"
	CondicionMonotributista       = "Monotributista"
	CondicionExento               = "Exento"
	CondicionConsumidorFinal      = "Consumidor Final"
	CondicionNoResponsable        = "No Responsable"
)

// Cliente representa un receptor de facturas.
type Cliente struct {
	ID           string
	RazonSocial  string
	CUIT         string // sin guiones; "00000000000" para consumidor final sin identificar
	CondicionIVA string
	Domicilio    string
	Email        string
	Telefono     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
