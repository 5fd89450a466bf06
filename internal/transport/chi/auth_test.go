package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth_DisabledWithoutKeys(t *testing.T) {
	h := BearerAuthMiddleware(nil)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/answer", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth is disabled", rec.Code)
	}
}

func TestBearerAuth_ValidKey(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/answer", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for a valid key", rec.Code)
	}
}

func TestBearerAuth_Rejections(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic secret-key"},
		{"wrong key", "Bearer other-key"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/answer", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q, want application/json", ct)
			}
		})
	}
}

func TestBearerAuth_ExemptPaths(t *testing.T) {
	h := BearerAuthMiddleware([]string{"secret-key"})(okHandler())

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without auth", path, rec.Code)
		}
	}
}
