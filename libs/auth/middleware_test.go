package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signedRequest(t *testing.T, secret string, claims Claims) *http.Request {
	t.Helper()
	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRequireAuthSetsPrincipal(t *testing.T) {
	var got Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		if r.Header.Get("X-Company-Id") != "clinic-1" {
			t.Errorf("expected verified company header, got %q", r.Header.Get("X-Company-Id"))
		}
		w.WriteHeader(http.StatusNoContent)
	})

	req := signedRequest(t, "s", Claims{Sub: "u1", CompanyID: "clinic-1", Role: "receptionist", Exp: time.Now().Add(time.Hour).Unix()})
	req.Header.Set("X-Company-Id", "spoofed")
	rec := httptest.NewRecorder()
	RequireAuth(next, Verifier{Secret: "s"}).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got.UserID != "u1" || got.CompanyID != "clinic-1" || got.Role != RoleReceptionist {
		t.Fatalf("unexpected principal: %+v", got)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	RequireAuth(http.NotFoundHandler(), Verifier{Secret: "s"}).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireAuth(RequireRole(ok, AdminRoles...), Verifier{Secret: "s"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "s", Claims{Sub: "u", CompanyID: "c", Role: "ESTHETICIAN"}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for esthetician, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "s", Claims{Sub: "u", CompanyID: "c", Role: "ADMIN"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestVerifierUsesJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "k1",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	token, err := signRS256(Claims{Sub: "u", CompanyID: "c", Role: "OWNER"}, key, "k1")
	if err != nil {
		t.Fatalf("signRS256 failed: %v", err)
	}
	v := Verifier{JWKS: NewJWKSClient(srv.URL, time.Minute)}
	claims, err := v.Verify(t.Context(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.CompanyID != "c" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
