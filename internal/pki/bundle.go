package pki

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/certsmith/certportal/internal/models"
)

// ErrNoPrivateKey is returned when a bundle is requested for a record with
// no stored key material.
var ErrNoPrivateKey = errors.New("no private key stored for certificate")

// PEMBundle concatenates the stored certificate and private key, each
// followed by a line break, and returns the attachment filename.
func PEMBundle(rec *models.CertificateRecord) ([]byte, string, error) {
	if rec.PrivateKeyPEM == "" {
		return nil, "", ErrNoPrivateKey
	}

	bundle := rec.CertificatePEM + "\n" + rec.PrivateKeyPEM + "\n"
	return []byte(bundle), BundleFileName(rec.ID, rec.CommonName, "pem"), nil
}

// PKCS12Bundle re-encodes the stored certificate and key into a single
// PKCS#12 container. A non-empty password selects the strongest encryption
// the library offers; an empty password produces an unencrypted container.
func PKCS12Bundle(rec *models.CertificateRecord, password string) ([]byte, string, error) {
	if rec.PrivateKeyPEM == "" {
		return nil, "", ErrNoPrivateKey
	}

	block, _ := pem.Decode([]byte(rec.CertificatePEM))
	if block == nil {
		return nil, "", fmt.Errorf("stored certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse stored certificate: %w", err)
	}

	key, err := parsePrivateKeyPEM(rec.PrivateKeyPEM)
	if err != nil {
		return nil, "", err
	}

	encoder := pkcs12.Passwordless
	if password != "" {
		encoder = pkcs12.Modern2023
	}

	data, err := encoder.Encode(key, cert, nil, password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode PKCS#12 container: %w", err)
	}

	return data, BundleFileName(rec.ID, rec.CommonName, "p12"), nil
}

// BundleFileName builds the download attachment name from the record id and
// a sanitized common name, e.g. cert_3_example_com.pem.
func BundleFileName(id int64, commonName, ext string) string {
	sanitized := strings.ReplaceAll(commonName, ".", "_")
	return fmt.Sprintf("cert_%d_%s.%s", id, sanitized, ext)
}

// parsePrivateKeyPEM decodes an unencrypted private key in PKCS#8, PKCS#1,
// or SEC 1 form.
func parsePrivateKeyPEM(keyPEM string) (any, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("stored private key is not valid PEM")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, fmt.Errorf("failed to parse stored private key")
}
