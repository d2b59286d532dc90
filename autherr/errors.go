// Package autherr defines the error taxonomy for the authorization pipeline.
// Every failure raised by the validator, key retriever, userinfo client, or
// claims provider carries a stable code which maps to an HTTP status and a
// sanitized client-facing payload.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category.
type Code string

const (
	// CodeUnauthorized means no usable bearer token was supplied.
	CodeUnauthorized Code = "unauthorized"
	// CodeInvalidToken covers signature, issuer, audience, and malformed-token failures.
	CodeInvalidToken Code = "invalid_token"
	// CodeTokenExpired means the token's exp claim has passed.
	CodeTokenExpired Code = "token_expired"
	// CodeSigningKeyDownload means the JWKS endpoint was unreachable or held no matching key.
	CodeSigningKeyDownload Code = "signing_key_download_error"
	// CodeUserInfoTokenExpired means the token expired between validation and
	// the userinfo call. A benign timing race, not a server defect.
	CodeUserInfoTokenExpired Code = "userinfo_token_expired"
	// CodeIntrospectionTransport covers network or protocol failures talking to
	// the introspection endpoint.
	CodeIntrospectionTransport Code = "introspection_transport_error"
	// CodeUserInfoTransport covers network or protocol failures talking to the
	// userinfo endpoint.
	CodeUserInfoTransport Code = "userinfo_transport_error"
	// CodeMissingClaim means the token or userinfo response lacked a claim the
	// API requires. A trusted issuer should always supply it.
	CodeMissingClaim Code = "missing_claim"
	// CodeClaimsProvider means a domain claims lookup failed.
	CodeClaimsProvider Code = "claims_provider_error"
	// CodeServer is the fallback for unclassified failures.
	CodeServer Code = "server_error"
)

var messages = map[Code]string{
	CodeUnauthorized:           "Missing or invalid credentials",
	CodeInvalidToken:           "Missing or invalid credentials",
	CodeTokenExpired:           "Missing or invalid credentials",
	CodeSigningKeyDownload:     "Missing or invalid credentials",
	CodeUserInfoTokenExpired:   "Missing or invalid credentials",
	CodeIntrospectionTransport: "An unexpected problem occurred",
	CodeUserInfoTransport:      "An unexpected problem occurred",
	CodeMissingClaim:           "An unexpected problem occurred",
	CodeClaimsProvider:         "An unexpected problem occurred",
	CodeServer:                 "An unexpected problem occurred",
}

// Error wraps a failure with a stable code.
type Error struct {
	Code Code
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given code. A nil err is allowed for terminal
// conditions that carry no further detail (e.g. a missing header).
func New(code Code, err error) error {
	return &Error{Code: code, Err: err}
}

// Newf wraps a formatted error with the given code.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the code from err, or CodeServer if err carries none.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeServer
}

// Status maps a code to the HTTP status returned to the caller. Signing-key
// failures are deliberately indistinguishable from invalid tokens externally.
func Status(code Code) int {
	switch code {
	case CodeUnauthorized, CodeInvalidToken, CodeTokenExpired,
		CodeSigningKeyDownload, CodeUserInfoTokenExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
