package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/certsmith/certportal/internal/ca"
	"github.com/certsmith/certportal/internal/config"
	"github.com/certsmith/certportal/internal/db"
	"github.com/certsmith/certportal/internal/db/repository"
	"github.com/certsmith/certportal/internal/models"
	"github.com/certsmith/certportal/internal/service"
)

type fakeSigner struct {
	result *ca.SignResult
	err    error
	calls  int
}

func (f *fakeSigner) Sign(ctx context.Context, req *ca.SignRequest) (*ca.SignResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// signedPair generates a self-signed certificate and key, PEM encoded the
// way CFSSL returns them.
func signedPair(t *testing.T, cn string) (certPEM, keyPEM string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{cn},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}))
	return certPEM, keyPEM
}

func newTestServer(t *testing.T, signer ca.Signer) (*Server, *repository.CertRepository) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "certs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	certRepo := repository.NewCertRepository(database.DB)
	issuer := service.NewIssuer(signer, certRepo)

	return NewServer(config.Default(), issuer, certRepo), certRepo
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateCertificate(t *testing.T) {
	certPEM, keyPEM := signedPair(t, "svc.internal")
	signer := &fakeSigner{
		result: &ca.SignResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM, SerialNumber: "42"},
	}
	srv, _ := newTestServer(t, signer)

	rec := doJSON(t, srv, http.MethodPost, "/certs", map[string]any{
		"cn":              "svc.internal",
		"sans":            []string{},
		"validity_option": "custom",
		"validity_days":   90,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.CertificateRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	assert.NotZero(t, got.ID)
	assert.Equal(t, "svc.internal", got.CommonName)
	assert.Equal(t, []string{"svc.internal"}, got.SubjectAltNames, "empty sans must fall back to [cn]")
	assert.Equal(t, "42", got.SerialNumber)
	assert.Equal(t, int64(90), got.ValidityDays)
	assert.Equal(t, models.StatusValid, got.Status)
	assert.Equal(t, keyPEM, got.PrivateKeyPEM, "create response is the one place the key is returned")
	assert.True(t, got.HasPrivateKey)
	assert.Equal(t, 90*24*time.Hour, got.ExpiresAt.Sub(got.IssuedAt))
}

func TestCreateCertificate_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSigner{})

	rec := doJSON(t, srv, http.MethodPost, "/certs", map[string]any{"sans": []string{"a"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cn is required")
}

func TestCreateCertificate_InvalidValidity(t *testing.T) {
	signer := &fakeSigner{}
	srv, repo := newTestServer(t, signer)

	for _, body := range []map[string]any{
		{"cn": "svc.internal", "validity_option": "2y"},
		{"cn": "svc.internal", "validity_option": "custom"},
		{"cn": "svc.internal", "validity_option": "custom", "validity_days": 0},
	} {
		rec := doJSON(t, srv, http.MethodPost, "/certs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %v", body)
	}

	assert.Zero(t, signer.calls, "CA must never be called for invalid validity input")
	count, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateCertificate_CAUnreachable(t *testing.T) {
	// A real client pointed at a server that is no longer listening.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	signer := ca.NewClient(backend.URL, time.Second, 0)
	srv, repo := newTestServer(t, signer)

	rec := doJSON(t, srv, http.MethodPost, "/certs", map[string]any{"cn": "svc.internal"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "store must hold no new row after a CA failure")
}

func TestCreateCertificate_MalformedCAResponse(t *testing.T) {
	signer := &fakeSigner{
		err: fmt.Errorf("%w: missing certificate or private key", ca.ErrMalformedResponse),
	}
	srv, _ := newTestServer(t, signer)

	rec := doJSON(t, srv, http.MethodPost, "/certs", map[string]any{"cn": "svc.internal"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListCertificates(t *testing.T) {
	certPEM, keyPEM := signedPair(t, "svc.internal")
	signer := &fakeSigner{
		result: &ca.SignResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM},
	}
	srv, _ := newTestServer(t, signer)

	for _, cn := range []string{"a.internal", "b.internal"} {
		rec := doJSON(t, srv, http.MethodPost, "/certs", map[string]any{"cn": cn})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, srv, http.MethodGet, "/certs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)

	assert.Equal(t, "b.internal", summaries[0]["cn"], "newest record first")
	assert.Equal(t, "a.internal", summaries[1]["cn"])

	for _, s := range summaries {
		assert.Equal(t, true, s["has_private_key"])
		_, present := s["private_key_pem"]
		assert.False(t, present, "list output must not carry key material")
	}
	assert.NotContains(t, rec.Body.String(), keyPEM)
}

func TestDownloadPEM(t *testing.T) {
	certPEM, keyPEM := signedPair(t, "svc.internal")
	signer := &fakeSigner{
		result: &ca.SignResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM},
	}
	srv, _ := newTestServer(t, signer)

	created := doJSON(t, srv, http.MethodPost, "/certs", map[string]any{"cn": "svc.internal"})
	require.Equal(t, http.StatusOK, created.Code)
	var rec models.CertificateRecord
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &rec))

	resp := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/certs/%d/download.pem", rec.ID), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, certPEM+"\n"+keyPEM+"\n", resp.Body.String())
	assert.Equal(t, "application/x-pem-file", resp.Header().Get("Content-Type"))

	disposition := resp.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, "attachment; filename=cert_"), disposition)
	assert.Contains(t, disposition, "svc_internal.pem")
}

func TestDownloadP12(t *testing.T) {
	certPEM, keyPEM := signedPair(t, "svc.internal")
	signer := &fakeSigner{
		result: &ca.SignResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM},
	}
	srv, _ := newTestServer(t, signer)

	created := doJSON(t, srv, http.MethodPost, "/certs", map[string]any{"cn": "svc.internal"})
	require.Equal(t, http.StatusOK, created.Code)
	var rec models.CertificateRecord
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &rec))

	t.Run("with password", func(t *testing.T) {
		resp := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/certs/%d/download.p12?password=sekrit", rec.ID), nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "application/x-pkcs12", resp.Header().Get("Content-Type"))
		assert.Contains(t, resp.Header().Get("Content-Disposition"), ".p12")

		_, cert, err := pkcs12.Decode(resp.Body.Bytes(), "sekrit")
		require.NoError(t, err, "container must open with the supplied password")
		assert.Equal(t, "svc.internal", cert.Subject.CommonName)
	})

	t.Run("without password", func(t *testing.T) {
		resp := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/certs/%d/download.p12", rec.ID), nil)
		require.Equal(t, http.StatusOK, resp.Code)

		_, cert, err := pkcs12.Decode(resp.Body.Bytes(), "")
		require.NoError(t, err, "container must open without a password")
		assert.Equal(t, "svc.internal", cert.Subject.CommonName)
	})
}

func TestDownload_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSigner{})

	for _, path := range []string{
		"/certs/999/download.pem",
		"/certs/999/download.p12",
		"/certs/nope/download.pem",
	} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSigner{})

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSigner{})

	req := httptest.NewRequest(http.MethodOptions, "/certs", nil)
	req.Header.Set("Origin", "http://portal.internal")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
