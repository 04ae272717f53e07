package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// authRealm is reported in WWW-Authenticate challenges.
const authRealm = `Bearer realm="pdfrag"`

// authMiddleware requires "Authorization: Bearer <apiKey>" on every request
// reaching next. An empty apiKey disables the check; New logs that once at
// startup. The presented token is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		switch {
		case token == "":
			log.Warn("auth: missing bearer token", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "authorization required", http.StatusUnauthorized)
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			log.Warn("auth: invalid token", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", authRealm+` error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// bearerToken extracts the token from an Authorization header, or returns ""
// when the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
