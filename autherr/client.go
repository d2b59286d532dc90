package autherr

import (
	"github.com/google/uuid"
)

// ClientError is the sanitized body returned to callers. It never carries
// stack traces, internal URLs, or upstream error text.
type ClientError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// InstanceID is set on 5xx responses so support can find the
	// corresponding server-side log entry.
	InstanceID string `json:"instance_id,omitempty"`
}

// ClientPayload translates err into an HTTP status and client body.
//
// All 401 causes beyond a missing token collapse to the invalid_token code so
// that callers cannot distinguish a signing-key outage or an expiry race from
// an ordinary bad token. All 500 causes collapse to server_error; the precise
// code stays server-side in the logs.
func ClientPayload(err error) (int, ClientError) {
	code := CodeOf(err)
	status := Status(code)

	var clientCode Code
	switch {
	case code == CodeUnauthorized:
		clientCode = CodeUnauthorized
	case status == 401:
		clientCode = CodeInvalidToken
	default:
		clientCode = CodeServer
	}

	body := ClientError{Code: string(clientCode), Message: messages[clientCode]}
	if status >= 500 {
		body.InstanceID = uuid.NewString()
	}
	return status, body
}
