package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSPreflight(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.clinic.test"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://app.clinic.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Methods") != "GET, POST" {
		t.Fatalf("unexpected methods header %q", rw.Header().Get("Access-Control-Allow-Methods"))
	}

	other := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	other.Header.Set("Origin", "https://evil.test")
	rwOther := httptest.NewRecorder()
	h.ServeHTTP(rwOther, other)
	if rwOther.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header for unknown origin")
	}
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	if WithCORS(CORSPolicy{}) != nil {
		t.Fatal("expected nil middleware when no origins configured")
	}
}
