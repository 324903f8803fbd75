package arca

import "encoding/xml"

// Estructuras de las operaciones WSFEv1 que usa el servicio:
// FECAESolicitar, FECompUltimoAutorizado y FECompConsultar.
// El namespace y los nombres de campo son los del WSDL del organismo.

const (
	wsfeNS         = "http://ar.gov.afip.dif.FEV1/"
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

	// Moneda fija: el servicio emite únicamente en pesos.
	monedaPesos   = "PES"
	cotizacionUno = "1.000000"
)

// Códigos de error del WS con tratamiento especial.
const (
	// codCbteDesdeDistintoUltimo: CbteDesde no es último autorizado + 1. Puede
	// significar numeración desfasada O reenvío de un comprobante ya
	// autorizado; se desambigua con FECompConsultar.
	codCbteDesdeDistintoUltimo = 10016

	// codComprobanteNoExiste: FECompConsultar no encontró el comprobante.
	codComprobanteNoExiste = 602
)

// ── Envelope ──────────────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	XmlnsS  string   `xml:"xmlns:soapenv,attr"`
	XmlnsAr string   `xml:"xmlns:ar,attr"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// feAuth credenciales del ticket de acceso WSAA más el CUIT del emisor.
type feAuth struct {
	Token string `xml:"ar:Token"`
	Sign  string `xml:"ar:Sign"`
	Cuit  int64  `xml:"ar:Cuit"`
}

// ── FECAESolicitar ────────────────────────────────────────────────────────────

type feCAESolicitarBody struct {
	XMLName  xml.Name `xml:"ar:FECAESolicitar"`
	Auth     feAuth   `xml:"ar:Auth"`
	FeCAEReq feCAEReq `xml:"ar:FeCAEReq"`
}

type feCAEReq struct {
	FeCabReq feCabReq `xml:"ar:FeCabReq"`
	FeDetReq feDetReq `xml:"ar:FeDetReq"`
}

type feCabReq struct {
	CantReg  int `xml:"ar:CantReg"`
	PtoVta   int `xml:"ar:PtoVta"`
	CbteTipo int `xml:"ar:CbteTipo"`
}

type feDetReq struct {
	Detalle []feCAEDetRequest `xml:"ar:FECAEDetRequest"`
}

type feCAEDetRequest struct {
	Concepto   int    `xml:"ar:Concepto"`
	DocTipo    int    `xml:"ar:DocTipo"`
	DocNro     int64  `xml:"ar:DocNro"`
	CbteDesde  int64  `xml:"ar:CbteDesde"`
	CbteHasta  int64  `xml:"ar:CbteHasta"`
	CbteFch    string `xml:"ar:CbteFch"` // yyyymmdd
	ImpTotal   string `xml:"ar:ImpTotal"`
	ImpTotConc string `xml:"ar:ImpTotConc"` // neto no gravado
	ImpNeto    string `xml:"ar:ImpNeto"`
	ImpOpEx    string `xml:"ar:ImpOpEx"` // exento
	ImpTrib    string `xml:"ar:ImpTrib"` // otros tributos
	ImpIVA     string `xml:"ar:ImpIVA"`
	MonID      string `xml:"ar:MonId"`
	MonCotiz   string `xml:"ar:MonCotiz"`

	CondicionIVAReceptorID int `xml:"ar:CondicionIVAReceptorId"`

	IVA *feAlicuotas `xml:"ar:Iva,omitempty"`
}

type feAlicuotas struct {
	Alicuotas []feAlicIVA `xml:"ar:AlicIva"`
}

type feAlicIVA struct {
	ID      int    `xml:"ar:Id"`
	BaseImp string `xml:"ar:BaseImp"`
	Importe string `xml:"ar:Importe"`
}

// ── FECompUltimoAutorizado ────────────────────────────────────────────────────

type feCompUltimoAutorizadoBody struct {
	XMLName  xml.Name `xml:"ar:FECompUltimoAutorizado"`
	Auth     feAuth   `xml:"ar:Auth"`
	PtoVta   int      `xml:"ar:PtoVta"`
	CbteTipo int      `xml:"ar:CbteTipo"`
}

// ── FECompConsultar ───────────────────────────────────────────────────────────

type feCompConsultarBody struct {
	XMLName    xml.Name         `xml:"ar:FECompConsultar"`
	Auth       feAuth           `xml:"ar:Auth"`
	FeCompCons feCompConsultReq `xml:"ar:FeCompConsReq"`
}

type feCompConsultReq struct {
	CbteTipo int   `xml:"ar:CbteTipo"`
	CbteNro  int64 `xml:"ar:CbteNro"`
	PtoVta   int   `xml:"ar:PtoVta"`
}

// ── Respuestas ────────────────────────────────────────────────────────────────

type respuestaEnvelope struct {
	Body respuestaBody `xml:"Body"`
}

type respuestaBody struct {
	CAESolicitar      *feCAESolicitarResponse      `xml:"FECAESolicitarResponse"`
	UltimoAutorizado  *feCompUltimoAutorizadoResp  `xml:"FECompUltimoAutorizadoResponse"`
	CompConsultar     *feCompConsultarResponse     `xml:"FECompConsultarResponse"`
	Fault             *soapFault                   `xml:"Fault"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

type feCAESolicitarResponse struct {
	Result feCAESolicitarResult `xml:"FECAESolicitarResult"`
}

type feCAESolicitarResult struct {
	FeCabResp feCabResp  `xml:"FeCabResp"`
	FeDetResp feDetResp  `xml:"FeDetResp"`
	Errors    *feErrores `xml:"Errors"`
	Events    *feEventos `xml:"Events"`
}

type feCabResp struct {
	Resultado string `xml:"Resultado"` // A, R o P
	PtoVta    int    `xml:"PtoVta"`
	CbteTipo  int    `xml:"CbteTipo"`
}

type feDetResp struct {
	Detalle []feCAEDetResponse `xml:"FECAEDetResponse"`
}

type feCAEDetResponse struct {
	Resultado     string            `xml:"Resultado"`
	CbteDesde     int64             `xml:"CbteDesde"`
	CAE           string            `xml:"CAE"`
	CAEFchVto     string            `xml:"CAEFchVto"` // yyyymmdd
	Observaciones *feObservaciones  `xml:"Observaciones"`
}

type feObservaciones struct {
	Obs []feCodigoMensaje `xml:"Obs"`
}

type feErrores struct {
	Err []feCodigoMensaje `xml:"Err"`
}

type feEventos struct {
	Evt []feCodigoMensaje `xml:"Evt"`
}

type feCodigoMensaje struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

type feCompUltimoAutorizadoResp struct {
	Result feCompUltimoAutorizadoResult `xml:"FECompUltimoAutorizadoResult"`
}

type feCompUltimoAutorizadoResult struct {
	PtoVta   int        `xml:"PtoVta"`
	CbteTipo int        `xml:"CbteTipo"`
	CbteNro  int64      `xml:"CbteNro"`
	Errors   *feErrores `xml:"Errors"`
}

type feCompConsultarResponse struct {
	Result feCompConsultarResult `xml:"FECompConsultarResult"`
}

type feCompConsultarResult struct {
	ResultGet *feCompConsultado `xml:"ResultGet"`
	Errors    *feErrores        `xml:"Errors"`
}

type feCompConsultado struct {
	CbteDesde       int64  `xml:"CbteDesde"`
	CodAutorizacion string `xml:"CodAutorizacion"` // CAE
	FchVto          string `xml:"FchVto"`          // yyyymmdd
	Resultado       string `xml:"Resultado"`
	EmisionTipo     string `xml:"EmisionTipo"` // CAE o CAEA
}
