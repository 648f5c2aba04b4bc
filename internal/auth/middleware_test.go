package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-minimum-256-bits-long-for-hs256"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user123",
		"email": "seo@example.com",
		"iss":   "https://issuer.example.com",
		"aud":   "seo-parser",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func protectedHandler(t *testing.T, client AuthClient) http.Handler {
	t.Helper()
	return AuthMiddlewareWithClient(client)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUserFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(user.Subject))
	}))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"secret", &Config{Secret: testSecret}, false},
		{"jwks", &Config{JWKSURL: "https://auth.example.com/.well-known/jwks.json"}, false},
		{"nothing", &Config{}, true},
		{"nil", nil, true},
		{"short_secret", &Config{Secret: "short"}, true},
		{"bad_jwks_url", &Config{JWKSURL: "ftp://auth.example.com/jwks"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("API_JWT_SECRET", "")
	t.Setenv("API_JWKS_URL", "")
	assert.Nil(t, NewConfigFromEnv())

	t.Setenv("API_JWT_SECRET", testSecret)
	t.Setenv("API_JWT_ISSUER", "https://issuer.example.com")
	config := NewConfigFromEnv()
	require.NotNil(t, config)
	assert.Equal(t, testSecret, config.Secret)
	assert.Equal(t, "https://issuer.example.com", config.Issuer)
}

func TestAuthMiddlewareWithSecret(t *testing.T) {
	client, err := NewTokenAuthClient(&Config{
		Secret:   testSecret,
		Issuer:   "https://issuer.example.com",
		Audience: "seo-parser",
	})
	require.NoError(t, err)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"
	noExpiry := validClaims()
	delete(noExpiry, "exp")

	tests := []struct {
		name        string
		header      string
		wantStatus  int
		wantMessage string
	}{
		{"valid_token", "Bearer " + signHS256(t, testSecret, validClaims()), http.StatusOK, ""},
		{"missing_header", "", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"not_bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"expired_token", "Bearer " + signHS256(t, testSecret, expired), http.StatusUnauthorized, "Authentication token has expired"},
		{"wrong_secret", "Bearer " + signHS256(t, "another-secret-key-that-is-also-long-enough", validClaims()), http.StatusUnauthorized, "Invalid token signature"},
		{"wrong_issuer", "Bearer " + signHS256(t, testSecret, wrongIssuer), http.StatusUnauthorized, "Invalid authentication token"},
		{"no_expiry", "Bearer " + signHS256(t, testSecret, noExpiry), http.StatusUnauthorized, "Invalid authentication token"},
		{"malformed", "Bearer invalid.token.format", http.StatusUnauthorized, "Invalid authentication token"},
	}

	handler := protectedHandler(t, client)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/crawls", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			rec.Header().Set("X-Request-ID", "req-1")

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "user123", rec.Body.String())
				return
			}

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMessage, body["message"])
			assert.Equal(t, "UNAUTHORISED", body["code"])
			assert.Equal(t, "req-1", body["request_id"])
		})
	}
}

func TestValidateTokenRejectsAlgNone(t *testing.T) {
	client, err := NewTokenAuthClient(&Config{Secret: testSecret})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = client.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestValidateTokenCancelledContext(t *testing.T) {
	client, err := NewTokenAuthClient(&Config{Secret: testSecret})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.ValidateToken(ctx, signHS256(t, testSecret, validClaims()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuthMiddlewareWithJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": "test-key",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	client, err := NewTokenAuthClient(&Config{JWKSURL: srv.URL})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/crawls", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	protectedHandler(t, client).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user123", rec.Body.String())
}

func TestGetUserFromContext(t *testing.T) {
	_, ok := GetUserFromContext(context.Background())
	assert.False(t, ok)

	user := &UserClaims{Email: "seo@example.com"}
	got, ok := GetUserFromContext(context.WithValue(context.Background(), UserKey, user))
	assert.True(t, ok)
	assert.Equal(t, user, got)

	_, ok = GetUserFromContext(context.WithValue(context.Background(), UserKey, "not-a-user"))
	assert.False(t, ok)
}
