package access

import (
	"net/http"

	"github.com/rs/zerolog"

	"vapi/internal/credential"
	"vapi/internal/respond"
)

// RejectionRecorder counts refused requests.
type RejectionRecorder interface {
	ObserveAuthRejection(reason string)
}

// Gate builds per-route middleware around one guard.
type Gate struct {
	guard    Guard
	recorder RejectionRecorder
	logger   zerolog.Logger
}

// NewGate returns a gate. recorder may be nil.
func NewGate(guard Guard, recorder RejectionRecorder, logger zerolog.Logger) *Gate {
	return &Gate{guard: guard, recorder: recorder, logger: logger}
}

// Require rejects requests whose credential does not cover scope at perm with
// a 403. Accepted credentials are attached to the request context.
func (g *Gate) Require(scope string, perm credential.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, err := g.guard.Authorize(r, scope, perm)
			if err != nil {
				reason := Reason(err)
				if g.recorder != nil {
					g.recorder.ObserveAuthRejection(reason)
				}
				g.logger.Debug().Err(err).
					Str("path", r.URL.Path).
					Str("scope", scope).
					Int("permission", int(perm)).
					Str("reason", reason).
					Msg("request rejected")
				respond.Forbidden(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCredential(r.Context(), cred)))
		})
	}
}
