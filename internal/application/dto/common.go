package dto

// PageRequest paginación para listados.
type PageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// DefaultPage aplica valores por defecto si Limit/Offset son cero.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Observaciones del WS de ARCA cuando el rechazo viene del organismo.
	Observaciones []ObservacionDTO `json:"observaciones,omitempty"`
}

// ObservacionDTO observación de rechazo devuelta por ARCA.
type ObservacionDTO struct {
	Codigo  int    `json:"codigo"`
	Mensaje string `json:"mensaje"`
}
