// Package service orchestrates certificate issuance: validity resolution,
// the delegated CA call, and record persistence.
package service

import (
	"context"
	"time"

	"github.com/certsmith/certportal/internal/ca"
	"github.com/certsmith/certportal/internal/models"
	"github.com/certsmith/certportal/internal/pki"
)

type recordStore interface {
	Insert(rec *models.CertificateRecord) error
}

// IssueRequest is a validated certificate request.
type IssueRequest struct {
	CommonName         string
	SubjectAltNames    []string
	Profile            string
	Country            string
	Province           string
	Locality           string
	Organization       string
	OrganizationalUnit string
	KeyAlgo            string
	KeySize            int
	ValidityOption     string
	ValidityDays       int64
}

// Issuer produces and persists certificate records. On any failure no
// record is written.
type Issuer struct {
	signer ca.Signer
	store  recordStore
}

// NewIssuer creates an issuance service.
func NewIssuer(signer ca.Signer, store recordStore) *Issuer {
	return &Issuer{
		signer: signer,
		store:  store,
	}
}

// Issue resolves the validity period, requests a signed certificate from
// the CA, and persists exactly one record. Validity resolution failures
// happen before any CA call; CA failures happen before any write.
func (s *Issuer) Issue(ctx context.Context, req *IssueRequest) (*models.CertificateRecord, error) {
	issuedAt := time.Now().UTC()

	days, err := pki.ResolveValidityDays(req.ValidityOption, req.ValidityDays)
	if err != nil {
		return nil, err
	}
	expiresAt := issuedAt.Add(time.Duration(days) * 24 * time.Hour)

	sans := req.SubjectAltNames
	if len(sans) == 0 {
		sans = []string{req.CommonName}
	}

	result, err := s.signer.Sign(ctx, &ca.SignRequest{
		CommonName:         req.CommonName,
		Hosts:              sans,
		KeyAlgo:            req.KeyAlgo,
		KeySize:            req.KeySize,
		Profile:            req.Profile,
		Country:            req.Country,
		Province:           req.Province,
		Locality:           req.Locality,
		Organization:       req.Organization,
		OrganizationalUnit: req.OrganizationalUnit,
	})
	if err != nil {
		return nil, err
	}

	rec := &models.CertificateRecord{
		CommonName:      req.CommonName,
		SubjectAltNames: sans,
		SerialNumber:    result.SerialNumber,
		Profile:         req.Profile,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
		ValidityDays:    days,
		Status:          models.StatusValid,
		CertificatePEM:  result.CertificatePEM,
		PrivateKeyPEM:   result.PrivateKeyPEM,
		CreatedAt:       issuedAt,
	}

	if err := s.store.Insert(rec); err != nil {
		return nil, err
	}

	return rec, nil
}
