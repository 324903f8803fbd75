package dto

// CrearClienteRequest body para POST /api/clientes.
type CrearClienteRequest struct {
	RazonSocial  string `json:"razon_social"`
	CUIT         string `json:"cuit,omitempty"`
	CondicionIVA string `json:"condicion_iva"`
	Domicilio    string `json:"domicilio,omitempty"`
	Email        string `json:"email,omitempty"`
	Telefono     string `json:"telefono,omitempty"`
}

// ClienteResponse cliente en respuestas.
type ClienteResponse struct {
	ID           string `json:"id"`
	RazonSocial  string `json:"razon_social"`
	CUIT         string `json:"cuit,omitempty"`
	CondicionIVA string `json:"condicion_iva"`
	Domicilio    string `json:"domicilio,omitempty"`
	Email        string `json:"email,omitempty"`
	Telefono     string `json:"telefono,omitempty"`
}
