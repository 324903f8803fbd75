// Package arca implementa el cliente del WS de facturación electrónica
// WSFEv1 (ARCA, ex AFIP): solicitud de CAE, consulta del último comprobante
// autorizado y consulta puntual de comprobantes, más la autenticación WSAA.
package arca

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/damianpacheco/facturacion-arca/internal/application/billing"
	"github.com/damianpacheco/facturacion-arca/internal/domain"
	"github.com/damianpacheco/facturacion-arca/pkg/logger"
)

// Entornos del servicio.
const (
	EntornoDev          = "dev"  // sin WS: se usa el autorizador simulado
	EntornoHomologacion = "homo" // ambiente de pruebas del organismo
	EntornoProduccion   = "prod"
)

const (
	urlWSFEHomologacion = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	urlWSFEProduccion   = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"

	fechaWS = "20060102"
)

// Política de reintentos ante fallas transitorias del WS.
const (
	backoffInicial    = 500 * time.Millisecond
	backoffMaximo     = 8 * time.Second
	maxIntentos       = 4
	timeoutPorIntento = 30 * time.Second
)

// errNumeracionDesfasada: el WS devolvió el error 10016 (CbteDesde distinto
// del último autorizado + 1). Se desambigua con FECompConsultar: puede ser un
// reenvío de un comprobante ya autorizado o numeración realmente desfasada.
var errNumeracionDesfasada = errors.New("el WS esperaba otro número de comprobante")

// ProveedorAcceso entrega las credenciales vigentes del ticket WSAA.
type ProveedorAcceso interface {
	Acceso(ctx context.Context) (token, sign string, err error)
}

// ConfigCliente parámetros del cliente WSFE.
type ConfigCliente struct {
	Entorno string
	CUIT    int64
	URL     string // override del endpoint; vacío = según entorno
}

// ClienteWSFE implementa billing.AutorizadorARCA contra el WS SOAP real.
// Usa net/http con encoding/xml de la stdlib para el protocolo (el WSFE es
// SOAP 1.1 plano, sin firma a nivel de mensaje) y reintenta las fallas
// transitorias con backoff exponencial.
type ClienteWSFE struct {
	httpClient *http.Client
	url        string
	cuit       int64
	acceso     ProveedorAcceso
	log        *logger.Logger
}

// NewClienteWSFE construye el cliente para el entorno dado.
func NewClienteWSFE(cfg ConfigCliente, acceso ProveedorAcceso, log *logger.Logger) (*ClienteWSFE, error) {
	url := cfg.URL
	if url == "" {
		switch cfg.Entorno {
		case EntornoHomologacion:
			url = urlWSFEHomologacion
		case EntornoProduccion:
			url = urlWSFEProduccion
		default:
			return nil, fmt.Errorf("entorno WSFE desconocido %q (usar %q o %q)",
				cfg.Entorno, EntornoHomologacion, EntornoProduccion)
		}
	}
	return &ClienteWSFE{
		httpClient: &http.Client{Timeout: timeoutPorIntento},
		url:        url,
		cuit:       cfg.CUIT,
		acceso:     acceso,
		log:        log,
	}, nil
}

// ── billing.AutorizadorARCA ───────────────────────────────────────────────────

// UltimoAutorizado consulta FECompUltimoAutorizado para la serie dada.
func (c *ClienteWSFE) UltimoAutorizado(ctx context.Context, puntoVenta, tipoComprobante int) (int64, error) {
	operacion := func() (int64, error) {
		auth, err := c.auth(ctx)
		if err != nil {
			return 0, err
		}
		resp, err := c.llamar(ctx, "FECompUltimoAutorizado", &feCompUltimoAutorizadoBody{
			Auth:     auth,
			PtoVta:   puntoVenta,
			CbteTipo: tipoComprobante,
		})
		if err != nil {
			return 0, err
		}
		if resp.UltimoAutorizado == nil {
			return 0, fmt.Errorf("respuesta sin FECompUltimoAutorizadoResult")
		}
		result := resp.UltimoAutorizado.Result
		if result.Errors != nil && len(result.Errors.Err) > 0 {
			e := result.Errors.Err[0]
			return 0, backoff.Permanent(fmt.Errorf("FECompUltimoAutorizado [%d]: %s", e.Code, e.Msg))
		}
		return result.CbteNro, nil
	}

	n, err := backoff.RetryWithData(operacion, c.politica(ctx))
	if err != nil {
		return 0, c.clasificar(err)
	}
	return n, nil
}

// SolicitarCAE ejecuta FECAESolicitar para un comprobante ya numerado.
func (c *ClienteWSFE) SolicitarCAE(ctx context.Context, s *billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
	body := c.armarSolicitud(s)

	operacion := func() (*billing.ResultadoCAE, error) {
		auth, err := c.auth(ctx)
		if err != nil {
			return nil, err
		}
		body.Auth = auth
		resp, err := c.llamar(ctx, "FECAESolicitar", body)
		if err != nil {
			return nil, err
		}
		if resp.CAESolicitar == nil {
			return nil, fmt.Errorf("respuesta sin FECAESolicitarResult")
		}
		return c.interpretar(&resp.CAESolicitar.Result, s)
	}

	resultado, err := backoff.RetryWithData(operacion, c.politica(ctx))
	if errors.Is(err, errNumeracionDesfasada) {
		return c.desambiguar(ctx, s)
	}
	if err != nil {
		return nil, c.clasificar(err)
	}
	return resultado, nil
}

// ── Interpretación de respuestas ──────────────────────────────────────────────

// interpretar mapea el resultado de FECAESolicitar al desenlace de dominio.
// Los errores devueltos sin envolver se consideran transitorios y se
// reintentan; los terminales van envueltos en backoff.Permanent.
func (c *ClienteWSFE) interpretar(result *feCAESolicitarResult, s *billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
	if result.Errors != nil {
		for _, e := range result.Errors.Err {
			if e.Code == codCbteDesdeDistintoUltimo {
				return nil, backoff.Permanent(fmt.Errorf("%w: %s", errNumeracionDesfasada, e.Msg))
			}
		}
		// El array de errores del WS son fallas de la solicitud (validación,
		// padrón, etc.): terminales, se preservan textuales.
		obs := make([]domain.Observacion, 0, len(result.Errors.Err))
		for _, e := range result.Errors.Err {
			obs = append(obs, domain.Observacion{Codigo: e.Code, Mensaje: e.Msg})
		}
		return nil, backoff.Permanent(&domain.RechazoARCA{Observaciones: obs})
	}

	if len(result.FeDetResp.Detalle) == 0 {
		return nil, fmt.Errorf("respuesta de FECAESolicitar sin detalle")
	}
	det := result.FeDetResp.Detalle[0]

	if det.Resultado == "A" && result.FeCabResp.Resultado == "A" {
		vencimiento, err := time.ParseInLocation(fechaWS, det.CAEFchVto, time.Local)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("vencimiento de CAE ilegible %q: %w", det.CAEFchVto, err))
		}
		return &billing.ResultadoCAE{
			CAE:         det.CAE,
			Vencimiento: vencimiento,
			Numero:      det.CbteDesde,
		}, nil
	}

	// Rechazado: las observaciones explican el motivo.
	var obs []domain.Observacion
	if det.Observaciones != nil {
		for _, o := range det.Observaciones.Obs {
			obs = append(obs, domain.Observacion{Codigo: o.Code, Mensaje: o.Msg})
		}
	}
	return nil, backoff.Permanent(&domain.RechazoARCA{Observaciones: obs})
}

// desambiguar resuelve el error 10016 consultando el comprobante puntual:
// si ya existe autorizado con ese número es un reenvío (se recupera el CAE);
// si no existe, la numeración local quedó realmente desfasada.
func (c *ClienteWSFE) desambiguar(ctx context.Context, s *billing.SolicitudCAE) (*billing.ResultadoCAE, error) {
	consultado, err := c.consultar(ctx, s.TipoComprobante, s.PuntoVenta, s.Numero)
	if err != nil {
		if errors.Is(err, domain.ErrNoEncontrado) {
			c.log.Warn().
				Int("tipo_comprobante", s.TipoComprobante).
				Int("punto_venta", s.PuntoVenta).
				Int64("numero", s.Numero).
				Msg("numeración desfasada: el comprobante no existe en el WS")
			return nil, domain.ErrSecuenciaDesincronizada
		}
		return nil, c.clasificar(err)
	}

	if consultado.CodAutorizacion == "" {
		return nil, domain.ErrSecuenciaDesincronizada
	}

	vencimiento, perr := time.ParseInLocation(fechaWS, consultado.FchVto, time.Local)
	if perr != nil {
		return nil, fmt.Errorf("vencimiento de CAE ilegible %q: %w", consultado.FchVto, perr)
	}
	c.log.Info().
		Int64("numero", s.Numero).
		Str("cae", consultado.CodAutorizacion).
		Msg("comprobante ya autorizado: se recupera el CAE existente")
	return &billing.ResultadoCAE{
		CAE:         consultado.CodAutorizacion,
		Vencimiento: vencimiento,
		Numero:      consultado.CbteDesde,
		Reutilizado: true,
	}, nil
}

// consultar ejecuta FECompConsultar. Devuelve domain.ErrNoEncontrado si el
// comprobante no existe en el WS.
func (c *ClienteWSFE) consultar(ctx context.Context, tipo, pv int, numero int64) (*feCompConsultado, error) {
	operacion := func() (*feCompConsultado, error) {
		auth, err := c.auth(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.llamar(ctx, "FECompConsultar", &feCompConsultarBody{
			Auth:       auth,
			FeCompCons: feCompConsultReq{CbteTipo: tipo, CbteNro: numero, PtoVta: pv},
		})
		if err != nil {
			return nil, err
		}
		if resp.CompConsultar == nil {
			return nil, fmt.Errorf("respuesta sin FECompConsultarResult")
		}
		result := resp.CompConsultar.Result
		if result.Errors != nil && len(result.Errors.Err) > 0 {
			e := result.Errors.Err[0]
			if e.Code == codComprobanteNoExiste {
				return nil, backoff.Permanent(domain.ErrNoEncontrado)
			}
			return nil, backoff.Permanent(fmt.Errorf("FECompConsultar [%d]: %s", e.Code, e.Msg))
		}
		if result.ResultGet == nil {
			return nil, backoff.Permanent(domain.ErrNoEncontrado)
		}
		return result.ResultGet, nil
	}
	return backoff.RetryWithData(operacion, c.politica(ctx))
}

// ── Armado de solicitudes ─────────────────────────────────────────────────────

func (c *ClienteWSFE) armarSolicitud(s *billing.SolicitudCAE) *feCAESolicitarBody {
	det := feCAEDetRequest{
		Concepto:               s.Concepto,
		DocTipo:                s.TipoDoc,
		DocNro:                 s.NroDoc,
		CbteDesde:              s.Numero,
		CbteHasta:              s.Numero,
		CbteFch:                s.Fecha.Format(fechaWS),
		ImpTotal:               importe(s.ImpTotal),
		ImpTotConc:             importe(decimal.Zero),
		ImpNeto:                importe(s.ImpNeto),
		ImpOpEx:                importe(decimal.Zero),
		ImpTrib:                importe(decimal.Zero),
		ImpIVA:                 importe(s.ImpIVA),
		MonID:                  monedaPesos,
		MonCotiz:               cotizacionUno,
		CondicionIVAReceptorID: s.CondicionIVAReceptor,
	}
	if len(s.DetalleIVA) > 0 {
		alicuotas := make([]feAlicIVA, 0, len(s.DetalleIVA))
		for _, d := range s.DetalleIVA {
			alicuotas = append(alicuotas, feAlicIVA{
				ID:      d.Codigo,
				BaseImp: importe(d.Base),
				Importe: importe(d.Importe),
			})
		}
		det.IVA = &feAlicuotas{Alicuotas: alicuotas}
	}

	return &feCAESolicitarBody{
		FeCAEReq: feCAEReq{
			FeCabReq: feCabReq{CantReg: 1, PtoVta: s.PuntoVenta, CbteTipo: s.TipoComprobante},
			FeDetReq: feDetReq{Detalle: []feCAEDetRequest{det}},
		},
	}
}

func importe(d decimal.Decimal) string { return d.StringFixed(2) }

// ── Transporte ────────────────────────────────────────────────────────────────

// llamar despacha una operación SOAP y parsea la respuesta. Los errores de
// transporte y los 5xx vuelven sin envolver (reintentables); los SOAP Fault
// también, porque el WS los usa para caídas internas.
func (c *ClienteWSFE) llamar(ctx context.Context, operacion string, contenido interface{}) (*respuestaBody, error) {
	envelope := soapEnvelope{
		XmlnsS:  soapEnvelopeNS,
		XmlnsAr: wsfeNS,
		Body:    soapBody{Content: contenido},
	}
	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("serializando envelope de %s: %w", operacion, err))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeoutPorIntento)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.url,
		bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creando request de %s: %w", operacion, err))
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", wsfeNS+operacion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamando %s: %w", operacion, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("leyendo respuesta de %s: %w", operacion, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%s devolvió HTTP %d", operacion, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("%s devolvió HTTP %d: %s", operacion, resp.StatusCode, raw))
	}

	var parsed respuestaEnvelope
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parseando respuesta de %s: %w", operacion, err)
	}
	if parsed.Body.Fault != nil {
		return nil, fmt.Errorf("SOAP Fault en %s [%s]: %s",
			operacion, parsed.Body.Fault.FaultCode, parsed.Body.Fault.FaultString)
	}
	return &parsed.Body, nil
}

func (c *ClienteWSFE) auth(ctx context.Context) (feAuth, error) {
	token, sign, err := c.acceso.Acceso(ctx)
	if err != nil {
		return feAuth{}, fmt.Errorf("obteniendo ticket de acceso: %w", err)
	}
	return feAuth{Token: token, Sign: sign, Cuit: c.cuit}, nil
}

func (c *ClienteWSFE) politica(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffInicial
	b.Multiplier = 2
	b.MaxInterval = backoffMaximo
	return backoff.WithContext(backoff.WithMaxRetries(b, maxIntentos-1), ctx)
}

// clasificar traduce el error final del ciclo de reintentos al contrato del
// puerto: lo terminal pasa tal cual, lo demás es indisponibilidad del WS.
func (c *ClienteWSFE) clasificar(err error) error {
	var rechazo *domain.RechazoARCA
	if errors.As(err, &rechazo) {
		return err
	}
	if errors.Is(err, domain.ErrSecuenciaDesincronizada) || errors.Is(err, domain.ErrNoEncontrado) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrARCANoDisponible, err)
}
