package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestJWKSUnknownKidDoesNotHammerEndpoint(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{
			{Kty: "RSA", Kid: "enc", Use: "enc", N: "AQAB", E: "AQAB"},
		}})
	}))
	defer srv.Close()

	c := NewJWKSClient(srv.URL, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := c.Get(t.Context(), "missing"); err != ErrKeyNotFound {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	if _, err := c.Get(t.Context(), "enc"); err != ErrKeyNotFound {
		t.Fatalf("encryption keys must be ignored, got %v", err)
	}
}

func TestJWKSFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewJWKSClient(srv.URL, time.Minute).Get(t.Context(), "k1"); err == nil || err == ErrKeyNotFound {
		t.Fatalf("expected fetch error, got %v", err)
	}
}
