package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"shuttle/internal/logging"
)

// requireToken guards an API route with a bearer token. An empty token leaves
// the route open. Rejected phase control requests are logged since they would
// otherwise have started, paused, or cancelled a sync.
func (s *apiServer) requireToken(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	want := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		scheme, presented, _ := strings.Cut(r.Header.Get("Authorization"), " ")
		if strings.EqualFold(scheme, "Bearer") &&
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), want) == 1 {
			next(w, r)
			return
		}
		if r.Method != http.MethodGet {
			logging.WarnWithContext(s.log(), "api request rejected", "api_unauthorized",
				logging.String("path", r.URL.Path),
				logging.String("remote", r.RemoteAddr),
				logging.String(logging.FieldErrorHint, "send Authorization: Bearer <paths.api_token>"),
				logging.String(logging.FieldImpact, "phase control request ignored"),
			)
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="shuttle"`)
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
	}
}
