package api

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeVerifier struct {
	subject string
	err     error
	token   string
}

func (f *fakeVerifier) Verify(tokenString string) (string, error) {
	f.token = tokenString
	return f.subject, f.err
}

func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetClerkUserID(r.Context())
		w.Write([]byte(userID))
	})
}

func TestClerkAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		cfg        AuthMiddlewareConfig
		headers    map[string]string
		wantStatus int
		wantUser   string
	}{
		{
			name:       "valid bearer token",
			cfg:        AuthMiddlewareConfig{Verifier: &fakeVerifier{subject: "user_1"}},
			headers:    map[string]string{"Authorization": "Bearer token-abc"},
			wantStatus: http.StatusOK,
			wantUser:   "user_1",
		},
		{
			name:       "rejected token",
			cfg:        AuthMiddlewareConfig{Verifier: &fakeVerifier{err: errors.New("expired")}},
			headers:    map[string]string{"Authorization": "Bearer token-abc"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			cfg:        AuthMiddlewareConfig{Verifier: &fakeVerifier{subject: "user_1"}},
			headers:    map[string]string{"Authorization": "Basic dXNlcjpwdw=="},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no credentials",
			cfg:        AuthMiddlewareConfig{Verifier: &fakeVerifier{subject: "user_1"}},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "header fallback disabled",
			cfg:        AuthMiddlewareConfig{Verifier: &fakeVerifier{subject: "user_1"}},
			headers:    map[string]string{"X-Clerk-User-Id": "user_2"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "header fallback enabled",
			cfg:        AuthMiddlewareConfig{AllowHeaderFallback: true},
			headers:    map[string]string{"X-Clerk-User-Id": "user_2"},
			wantStatus: http.StatusOK,
			wantUser:   "user_2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ClerkAuthMiddleware(tt.cfg)(echoUserHandler())
			req := httptest.NewRequest(http.MethodGet, "/usage", nil)
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantUser != "" && rec.Body.String() != tt.wantUser {
				t.Fatalf("expected user %q in context, got %q", tt.wantUser, rec.Body.String())
			}
		})
	}
}

func TestClerkVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil }
	verifier := newClerkVerifier(keyFunc, "https://clerk.example.com")

	sign := func(claims jwt.MapClaims) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return signed
	}
	expires := time.Now().Add(time.Hour).Unix()

	subject, err := verifier.Verify(sign(jwt.MapClaims{"sub": "user_1", "iss": "https://clerk.example.com", "exp": expires}))
	if err != nil || subject != "user_1" {
		t.Fatalf("expected user_1, got %q, %v", subject, err)
	}

	rejected := map[string]jwt.MapClaims{
		"wrong issuer":  {"sub": "user_1", "iss": "https://evil.example.com", "exp": expires},
		"expired":       {"sub": "user_1", "iss": "https://clerk.example.com", "exp": time.Now().Add(-time.Hour).Unix()},
		"missing sub":   {"iss": "https://clerk.example.com", "exp": expires},
		"no expiration": {"sub": "user_1", "iss": "https://clerk.example.com"},
	}
	for name, claims := range rejected {
		t.Run(name, func(t *testing.T) {
			if _, err := verifier.Verify(sign(claims)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user_1", "exp": expires}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign hmac token: %v", err)
	}
	if _, err := verifier.Verify(hmacToken); err == nil {
		t.Fatalf("expected HS256 tokens to be rejected")
	}
}
