package models

import "time"

// Certificate status values. Issuance only ever writes StatusValid;
// the other values are reserved for future lifecycle transitions.
const (
	StatusValid   = "valid"
	StatusRevoked = "revoked"
	StatusExpired = "expired"
)

// CertificateRecord represents an issued certificate as stored, including
// the PEM-encoded key material. It is the response body for certificate
// creation, the only place the private key is ever returned.
type CertificateRecord struct {
	ID              int64     `json:"id"`
	CommonName      string    `json:"cn"`
	SubjectAltNames []string  `json:"sans"`
	SerialNumber    string    `json:"serial_number,omitempty"`
	Profile         string    `json:"profile,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ValidityDays    int64     `json:"validity_days"`
	Status          string    `json:"status"`
	CertificatePEM  string    `json:"certificate_pem"`
	PrivateKeyPEM   string    `json:"private_key_pem"`
	HasPrivateKey   bool      `json:"has_private_key"`
	CreatedAt       time.Time `json:"created_at"`
}

// CertificateSummary is the list representation of a record. The raw key
// material is replaced by the has_private_key flag.
type CertificateSummary struct {
	ID              int64     `json:"id"`
	CommonName      string    `json:"cn"`
	SubjectAltNames []string  `json:"sans"`
	SerialNumber    string    `json:"serial_number,omitempty"`
	Profile         string    `json:"profile,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ValidityDays    int64     `json:"validity_days"`
	Status          string    `json:"status"`
	CertificatePEM  string    `json:"certificate_pem"`
	HasPrivateKey   bool      `json:"has_private_key"`
}
