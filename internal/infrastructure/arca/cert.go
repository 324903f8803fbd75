package arca

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// CargarCertificado carga el certificado X.509 y la clave privada con los que
// se firma el CMS del WSAA. Acepta PEM (cert + key en archivos separados o en
// el mismo) y PKCS#12 (.p12/.pfx, el formato en que el portal de ARCA entrega
// los certificados).
func CargarCertificado(certPath, keyPath, password string) (*x509.Certificate, *rsa.PrivateKey, error) {
	if certPath == "" {
		return nil, nil, fmt.Errorf("falta la ruta del certificado")
	}

	if strings.HasSuffix(certPath, ".p12") || strings.HasSuffix(certPath, ".pfx") {
		return cargarPKCS12(certPath, password)
	}
	return cargarPEM(certPath, keyPath)
}

func cargarPKCS12(path, password string) (*x509.Certificate, *rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("leyendo %s: %w", path, err)
	}
	key, cert, err := pkcs12.Decode(raw, password)
	if err != nil {
		return nil, nil, fmt.Errorf("decodificando PKCS#12 %s: %w", path, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("la clave de %s no es RSA (%T)", path, key)
	}
	return cert, rsaKey, nil
}

func cargarPEM(certPath, keyPath string) (*x509.Certificate, *rsa.PrivateKey, error) {
	if keyPath == "" {
		// Un solo archivo puede contener cert+key en PEM.
		keyPath = certPath
	}
	par, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cargando par PEM: %w", err)
	}
	cert, err := x509.ParseCertificate(par.Certificate[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parseando certificado: %w", err)
	}
	rsaKey, ok := par.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("la clave de %s no es RSA (%T)", keyPath, par.PrivateKey)
	}
	return cert, rsaKey, nil
}
