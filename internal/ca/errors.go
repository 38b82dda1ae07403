package ca

import "errors"

// Failure kinds for a signing attempt. Callers match with errors.Is to map
// each kind to its own HTTP status.
var (
	// ErrUnreachable indicates a transport-level failure talking to the signer.
	ErrUnreachable = errors.New("CA unreachable")

	// ErrRejected indicates the signer answered with a non-200 status.
	ErrRejected = errors.New("CA rejected request")

	// ErrSigningFailed indicates the signer answered 200 but reported failure.
	ErrSigningFailed = errors.New("CA signing failed")

	// ErrMalformedResponse indicates a success response missing the
	// certificate or private key.
	ErrMalformedResponse = errors.New("malformed CA response")
)
