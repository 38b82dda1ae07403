package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/certsmith/certportal/internal/ca"
	"github.com/certsmith/certportal/internal/db/repository"
	"github.com/certsmith/certportal/internal/models"
	"github.com/certsmith/certportal/internal/pki"
	"github.com/certsmith/certportal/internal/service"
)

// CertHandler handles certificate listing, issuance, and downloads
type CertHandler struct {
	issuer   *service.Issuer
	certRepo *repository.CertRepository
}

// NewCertHandler creates a new certificate handler
func NewCertHandler(issuer *service.Issuer, certRepo *repository.CertRepository) *CertHandler {
	return &CertHandler{
		issuer:   issuer,
		certRepo: certRepo,
	}
}

// CreateRequest represents a certificate creation request
type CreateRequest struct {
	CN                 string   `json:"cn" binding:"required"`
	SANs               []string `json:"sans"`
	Profile            string   `json:"profile"`
	Country            string   `json:"country"`
	Organization       string   `json:"organization"`
	OrganizationalUnit string   `json:"organizational_unit"`
	Locality           string   `json:"locality"`
	Province           string   `json:"province"`
	KeyAlgo            string   `json:"key_algo"`
	KeySize            int      `json:"key_size"`
	ValidityOption     string   `json:"validity_option"`
	ValidityDays       int64    `json:"validity_days"`
}

// List returns summaries of all records, newest first.
// GET /certs
func (h *CertHandler) List(c *gin.Context) {
	summaries, err := h.certRepo.List()
	if err != nil {
		log.WithError(err).Error("failed to list certificates")
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to list certificates")
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// Create issues a new certificate through the delegated CA.
// POST /certs
func (h *CertHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.KeyAlgo == "" {
		req.KeyAlgo = "rsa"
	}
	if req.KeySize == 0 {
		req.KeySize = 2048
	}
	if req.ValidityOption == "" {
		req.ValidityOption = "1y"
	}

	rec, err := h.issuer.Issue(c.Request.Context(), &service.IssueRequest{
		CommonName:         req.CN,
		SubjectAltNames:    req.SANs,
		Profile:            req.Profile,
		Country:            req.Country,
		Province:           req.Province,
		Locality:           req.Locality,
		Organization:       req.Organization,
		OrganizationalUnit: req.OrganizationalUnit,
		KeyAlgo:            req.KeyAlgo,
		KeySize:            req.KeySize,
		ValidityOption:     req.ValidityOption,
		ValidityDays:       req.ValidityDays,
	})
	if err != nil {
		h.respondIssueError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *CertHandler) respondIssueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pki.ErrInvalidValidity):
		RespondError(c, http.StatusBadRequest, "invalid_validity", err.Error())
	case errors.Is(err, ca.ErrMalformedResponse):
		log.WithError(err).Error("CA returned malformed response")
		RespondError(c, http.StatusInternalServerError, "ca_malformed_response", err.Error())
	case errors.Is(err, ca.ErrUnreachable),
		errors.Is(err, ca.ErrRejected),
		errors.Is(err, ca.ErrSigningFailed):
		log.WithError(err).Error("CA signing request failed")
		RespondError(c, http.StatusBadGateway, "ca_error", err.Error())
	default:
		log.WithError(err).Error("failed to issue certificate")
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to issue certificate")
	}
}

// DownloadPEM serves the certificate and key as a single PEM attachment.
// GET /certs/:id/download.pem
func (h *CertHandler) DownloadPEM(c *gin.Context) {
	rec, ok := h.recordFromPath(c)
	if !ok {
		return
	}

	bundle, filename, err := pki.PEMBundle(rec)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", "Private key not available")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/x-pem-file", bundle)
}

// DownloadP12 serves the certificate and key as a PKCS#12 attachment,
// encrypted when the password query parameter is non-empty.
// GET /certs/:id/download.p12?password=...
func (h *CertHandler) DownloadP12(c *gin.Context) {
	rec, ok := h.recordFromPath(c)
	if !ok {
		return
	}

	bundle, filename, err := pki.PKCS12Bundle(rec, c.Query("password"))
	if err != nil {
		if errors.Is(err, pki.ErrNoPrivateKey) {
			RespondError(c, http.StatusNotFound, "not_found", "Private key not available")
			return
		}
		log.WithError(err).WithField("id", rec.ID).Error("failed to build PKCS#12 bundle")
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to build PKCS#12 bundle")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/x-pkcs12", bundle)
}

func (h *CertHandler) recordFromPath(c *gin.Context) (*models.CertificateRecord, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
		return nil, false
	}

	rec, err := h.certRepo.GetByID(id)
	if errors.Is(err, repository.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
		return nil, false
	}
	if err != nil {
		log.WithError(err).WithField("id", id).Error("failed to load certificate")
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to load certificate")
		return nil, false
	}

	return rec, true
}
