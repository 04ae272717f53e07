package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		apiKey    string
		header    string
		wantCode  int
		challenge string
	}{
		{"disabled, no header", "", "", http.StatusOK, ""},
		{"disabled, any header", "", "Bearer whatever", http.StatusOK, ""},
		{"missing header", "secret", "", http.StatusUnauthorized, `Bearer realm="pdfrag"`},
		{"wrong token", "secret", "Bearer nope", http.StatusUnauthorized, `Bearer realm="pdfrag" error="invalid_token"`},
		{"token prefix only", "secret", "Bearer secre", http.StatusUnauthorized, `Bearer realm="pdfrag" error="invalid_token"`},
		{"basic scheme", "secret", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, `Bearer realm="pdfrag"`},
		{"correct token", "secret", "Bearer secret", http.StatusOK, ""},
		{"lowercase scheme", "secret", "bearer secret", http.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Errorf("status: want %d, got %d", tc.wantCode, w.Code)
			}
			if got := w.Header().Get("WWW-Authenticate"); got != tc.challenge {
				t.Errorf("challenge: want %q, got %q", tc.challenge, got)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Bearer mytoken":     "mytoken",
		"BEARER mytoken":     "mytoken",
		"Bearer  spaced ":    "spaced",
		"Basic dXNlcjpwYXNz": "",
		"":                   "",
		"Bearer":             "",
		"token only":         "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := bearerToken(req); got != want {
			t.Errorf("header=%q: want %q, got %q", header, want, got)
		}
	}
}
