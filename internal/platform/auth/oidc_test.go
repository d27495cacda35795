package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

const testAudience = "https://api.example.com/internal"

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestRequireOIDC(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var fetches atomic.Int32
	srv := newJWKSServer(t, key, &fetches)
	validator := NewOIDCValidator(NewJWKSCache(srv.URL), nil)
	guard := validator.RequireOIDC(testAudience, []string{"https://accounts.google.com"})

	var subject string
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := ServiceIdentityFromContext(r.Context())
		subject = identity.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	exp := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   int
	}{
		{"valid", jwt.MapClaims{"iss": "https://accounts.google.com", "aud": testAudience, "sub": "scheduler", "exp": exp}, http.StatusNoContent},
		{"wrong audience", jwt.MapClaims{"iss": "https://accounts.google.com", "aud": "other", "exp": exp}, http.StatusUnauthorized},
		{"wrong issuer", jwt.MapClaims{"iss": "https://evil.example", "aud": testAudience, "exp": exp}, http.StatusUnauthorized},
		{"expired", jwt.MapClaims{"iss": "https://accounts.google.com", "aud": testAudience, "exp": time.Now().Add(-time.Hour).Unix()}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/idempotency/cleanup", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, key, tc.claims))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}

	if subject != "scheduler" {
		t.Fatalf("expected service identity subject, got %q", subject)
	}
	if fetches.Load() != 1 {
		t.Fatalf("expected JWKS to be fetched once, got %d", fetches.Load())
	}
}

func TestRequireOIDC_NotConfigured(t *testing.T) {
	handler := NewOIDCValidator(nil, nil).RequireOIDC("", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=120, must-revalidate", time.Minute); got != 2*time.Minute {
		t.Fatalf("unexpected max-age %v", got)
	}
	if got := maxAge("no-store", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}
