// Package ca relays certificate signing requests to an external CFSSL
// endpoint. Generation and signing happen entirely on the CFSSL side; this
// package only shapes the request and interprets the response.
package ca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// SignRequest describes one certificate to request from the signer.
type SignRequest struct {
	CommonName         string
	Hosts              []string
	KeyAlgo            string
	KeySize            int
	Profile            string
	Country            string
	Province           string
	Locality           string
	Organization       string
	OrganizationalUnit string
}

// SignResult is the material returned by a successful signing call.
type SignResult struct {
	CertificatePEM string
	PrivateKeyPEM  string
	SerialNumber   string
}

// Signer is implemented by anything able to produce a signed certificate
// and key pair for a request.
type Signer interface {
	Sign(ctx context.Context, req *SignRequest) (*SignResult, error)
}

// Client talks to a CFSSL newcert endpoint over HTTP.
type Client struct {
	endpoint string
	http     *retryablehttp.Client
}

// NewClient creates a CFSSL client. A single failed attempt is terminal
// unless retryMax is raised above zero.
func NewClient(endpoint string, timeout time.Duration, retryMax int) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.Logger = nil
	c.HTTPClient.Timeout = timeout

	// Only transport failures are retryable. Any HTTP response, including a
	// 5xx, is final so its status and body reach the caller intact.
	c.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	return &Client{
		endpoint: endpoint,
		http:     c,
	}
}

// CFSSL newcert wire format.
type newCertRequest struct {
	Request csrRequest `json:"request"`
	Profile string     `json:"profile,omitempty"`
}

type csrRequest struct {
	CN    string      `json:"CN"`
	Hosts []string    `json:"hosts"`
	Key   keyRequest  `json:"key"`
	Names []nameEntry `json:"names,omitempty"`
}

type keyRequest struct {
	Algo string `json:"algo"`
	Size int    `json:"size"`
}

type nameEntry struct {
	C  string `json:"C,omitempty"`
	ST string `json:"ST,omitempty"`
	L  string `json:"L,omitempty"`
	O  string `json:"O,omitempty"`
	OU string `json:"OU,omitempty"`
}

type newCertResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Certificate  string `json:"certificate"`
		PrivateKey   string `json:"private_key"`
		SerialNumber string `json:"serial_number"`
	} `json:"result"`
	Errors []ResponseError `json:"errors"`
}

// ResponseError is one entry of CFSSL's error list.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Sign submits a newcert request and returns the signed material.
func (c *Client) Sign(ctx context.Context, req *SignRequest) (*SignResult, error) {
	payload := newCertRequest{
		Request: csrRequest{
			CN:    req.CommonName,
			Hosts: req.Hosts,
			Key: keyRequest{
				Algo: req.KeyAlgo,
				Size: req.KeySize,
			},
		},
		Profile: req.Profile,
	}
	if len(payload.Request.Hosts) == 0 {
		payload.Request.Hosts = []string{req.CommonName}
	}

	// A distinguished-name block is only sent when at least one field is
	// present, never as an empty object.
	name := nameEntry{
		C:  req.Country,
		ST: req.Province,
		L:  req.Locality,
		O:  req.Organization,
		OU: req.OrganizationalUnit,
	}
	if name != (nameEntry{}) {
		payload.Request.Names = []nameEntry{name}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signing request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build signing request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, raw)
	}

	var result newCertResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrSigningFailed, formatErrors(result.Errors))
	}

	if result.Result.Certificate == "" || result.Result.PrivateKey == "" {
		return nil, fmt.Errorf("%w: missing certificate or private key", ErrMalformedResponse)
	}

	return &SignResult{
		CertificatePEM: result.Result.Certificate,
		PrivateKeyPEM:  result.Result.PrivateKey,
		SerialNumber:   result.Result.SerialNumber,
	}, nil
}

func formatErrors(errs []ResponseError) string {
	if len(errs) == 0 {
		return "no error details reported"
	}

	var buf bytes.Buffer
	for i, e := range errs {
		if i > 0 {
			buf.WriteString("; ")
		}
		fmt.Fprintf(&buf, "%d: %s", e.Code, e.Message)
	}
	return buf.String()
}
