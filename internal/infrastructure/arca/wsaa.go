package arca

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.mozilla.org/pkcs7"

	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// WSAA es el servicio de autenticación de ARCA: se le envía un TRA (ticket
// request) firmado CMS y devuelve un TA (token + sign) válido por 12 horas,
// que acompaña cada llamada al WSFE.

const (
	urlWSAAHomologacion = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	urlWSAAProduccion   = "https://wsaa.afip.gov.ar/ws/services/LoginCms"

	servicioWSFE = "wsfe"

	// margenRenovacion renueva el ticket antes de su expiración real para no
	// competir contra el reloj del organismo.
	margenRenovacion = 10 * time.Minute
)

// ticketAcceso es el TA vigente en memoria.
type ticketAcceso struct {
	Token  string
	Sign   string
	Expira time.Time
}

// ClienteWSAA implementa ProveedorAcceso contra el WSAA real, cacheando el
// ticket hasta cerca de su expiración.
type ClienteWSAA struct {
	httpClient *http.Client
	url        string
	cert       *x509.Certificate
	key        *rsa.PrivateKey
	log        *logger.Logger

	mu     sync.Mutex
	ticket *ticketAcceso
}

// NewClienteWSAA construye el cliente de autenticación. url vacía resuelve
// por entorno.
func NewClienteWSAA(entorno, url string, cert *x509.Certificate, key *rsa.PrivateKey, log *logger.Logger) (*ClienteWSAA, error) {
	if url == "" {
		switch entorno {
		case EntornoHomologacion:
			url = urlWSAAHomologacion
		case EntornoProduccion:
			url = urlWSAAProduccion
		default:
			return nil, fmt.Errorf("entorno WSAA desconocido %q", entorno)
		}
	}
	return &ClienteWSAA{
		httpClient: &http.Client{Timeout: timeoutPorIntento},
		url:        url,
		cert:       cert,
		key:        key,
		log:        log,
	}, nil
}

// Acceso devuelve el token y sign vigentes, renovando el ticket si hace falta.
func (c *ClienteWSAA) Acceso(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticket != nil && time.Now().Before(c.ticket.Expira.Add(-margenRenovacion)) {
		return c.ticket.Token, c.ticket.Sign, nil
	}

	ticket, err := c.login(ctx)
	if err != nil {
		return "", "", err
	}
	c.ticket = ticket
	c.log.Info().
		Time("expira", ticket.Expira).
		Msg("ticket de acceso WSAA renovado")
	return ticket.Token, ticket.Sign, nil
}

// login arma el TRA, lo firma CMS y lo canjea por un TA en el WSAA.
func (c *ClienteWSAA) login(ctx context.Context) (*ticketAcceso, error) {
	tra, err := c.armarTRA()
	if err != nil {
		return nil, err
	}

	cms, err := c.firmarCMS(tra)
	if err != nil {
		return nil, err
	}

	return c.canjear(ctx, cms)
}

// armarTRA genera el XML loginTicketRequest.
func (c *ClienteWSAA) armarTRA() ([]byte, error) {
	now := time.Now()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", "1.0")

	header := root.CreateElement("header")
	header.CreateElement("uniqueId").SetText(fmt.Sprintf("%d", now.Unix()))
	header.CreateElement("generationTime").SetText(now.Add(-10 * time.Minute).Format(time.RFC3339))
	header.CreateElement("expirationTime").SetText(now.Add(10 * time.Minute).Format(time.RFC3339))
	root.CreateElement("service").SetText(servicioWSFE)

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializando TRA: %w", err)
	}
	return out, nil
}

// firmarCMS firma el TRA en formato CMS/PKCS#7 con el certificado del emisor.
func (c *ClienteWSAA) firmarCMS(tra []byte) ([]byte, error) {
	signed, err := pkcs7.NewSignedData(tra)
	if err != nil {
		return nil, fmt.Errorf("inicializando firma CMS: %w", err)
	}
	if err := signed.AddSigner(c.cert, c.key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("firmando TRA: %w", err)
	}
	der, err := signed.Finish()
	if err != nil {
		return nil, fmt.Errorf("cerrando firma CMS: %w", err)
	}
	return der, nil
}

// Estructuras SOAP del LoginCms.

type loginCmsBody struct {
	XMLName xml.Name `xml:"loginCms"`
	Xmlns   string   `xml:"xmlns,attr"`
	In0     string   `xml:"in0"`
}

type loginEnvelope struct {
	XMLName xml.Name  `xml:"soapenv:Envelope"`
	XmlnsS  string    `xml:"xmlns:soapenv,attr"`
	Body    loginBody `xml:"soapenv:Body"`
}

type loginBody struct {
	LoginCms loginCmsBody
}

type loginRespuesta struct {
	Body struct {
		LoginCmsResponse struct {
			Return string `xml:"loginCmsReturn"`
		} `xml:"loginCmsResponse"`
		Fault *soapFault `xml:"Fault"`
	} `xml:"Body"`
}

// loginTicketResponse es el XML (escapado) que viaja dentro de loginCmsReturn.
type loginTicketResponse struct {
	Header struct {
		ExpirationTime string `xml:"expirationTime"`
	} `xml:"header"`
	Credentials struct {
		Token string `xml:"token"`
		Sign  string `xml:"sign"`
	} `xml:"credentials"`
}

// canjear envía el CMS al WSAA y parsea el TA resultante.
func (c *ClienteWSAA) canjear(ctx context.Context, cms []byte) (*ticketAcceso, error) {
	envelope := loginEnvelope{
		XmlnsS: soapEnvelopeNS,
		Body: loginBody{LoginCms: loginCmsBody{
			Xmlns: "http://wsaa.view.sua.dvadac.desein.afip.gov",
			In0:   base64.StdEncoding.EncodeToString(cms),
		}},
	}
	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("serializando loginCms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, fmt.Errorf("creando request de loginCms: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamando al WSAA: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("leyendo respuesta del WSAA: %w", err)
	}

	var parsed loginRespuesta
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parseando respuesta del WSAA: %w", err)
	}
	if parsed.Body.Fault != nil {
		// El WSAA reporta por fault incluso los errores esperables, como
		// "El CEE ya posee un TA valido".
		return nil, fmt.Errorf("WSAA fault [%s]: %s", parsed.Body.Fault.FaultCode, parsed.Body.Fault.FaultString)
	}

	var ta loginTicketResponse
	if err := xml.Unmarshal([]byte(parsed.Body.LoginCmsResponse.Return), &ta); err != nil {
		return nil, fmt.Errorf("parseando loginTicketResponse: %w", err)
	}
	expira, err := time.Parse(time.RFC3339, ta.Header.ExpirationTime)
	if err != nil {
		return nil, fmt.Errorf("expiración del TA ilegible %q: %w", ta.Header.ExpirationTime, err)
	}

	return &ticketAcceso{
		Token:  ta.Credentials.Token,
		Sign:   ta.Credentials.Sign,
		Expira: expira,
	}, nil
}
