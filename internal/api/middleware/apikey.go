package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/models"
)

// APIKeyHeader carries the operator key on admin requests.
const APIKeyHeader = "X-API-Key"

// APIKey guards operator endpoints. Requests without a key get 401, requests
// with an unknown key get 403. With no keys configured every request is
// rejected.
func APIKey(keys []string, logger zerolog.Logger) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				unauthorized(w, r, "API key required")
				return
			}

			for _, k := range allowed {
				if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("rejected admin request with invalid API key")
			problem := models.NewForbidden(GetRequestID(r.Context()), "invalid API key")
			problem.Instance = r.URL.Path
			problem.Write(w)
		})
	}
}
