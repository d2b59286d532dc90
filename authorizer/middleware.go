package authorizer

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
)

// Middleware gates a net/http handler behind the authorization pipeline. On
// success the resolved principal is attached to the request context for
// claims.FromContext. On failure it writes the sanitized error payload.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Authorize(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			a.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(claims.NewContext(r.Context(), principal)))
	})
}

// ClientError translates err into the sanitized client payload and logs the
// full detail server-side. 5xx responses carry an instance id that also
// appears in the log entry so support can correlate the two.
func (a *Authorizer) ClientError(err error) (int, autherr.ClientError) {
	status, body := autherr.ClientPayload(err)
	a.logOutcome(err, status, body.InstanceID)
	return status, body
}

// WriteError renders err onto a net/http response.
func (a *Authorizer) WriteError(w http.ResponseWriter, err error) {
	status, body := a.ClientError(err)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *Authorizer) logOutcome(err error, status int, instanceID string) {
	code := autherr.CodeOf(err)
	fields := logrus.Fields{"code": code, "status": status}
	if instanceID != "" {
		fields["instance_id"] = instanceID
	}
	entry := a.log.WithFields(fields)
	switch {
	case code == autherr.CodeUserInfoTokenExpired:
		// Benign race, already logged at info by Authorize.
		entry.Debug("request unauthorized")
	case code == autherr.CodeSigningKeyDownload:
		// 401 externally, but operationally a dependency problem.
		entry.WithError(err).Error("signing key download failed")
	case status == http.StatusUnauthorized:
		entry.Debug("request unauthorized")
	default:
		entry.WithError(err).Error("authorization pipeline failed")
	}
}
