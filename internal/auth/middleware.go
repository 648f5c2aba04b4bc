package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/getsentry/sentry-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// AuthClient defines the interface for authentication operations
type AuthClient interface {
	ValidateToken(ctx context.Context, token string) (*UserClaims, error)
	ExtractTokenFromRequest(r *http.Request) (string, error)
	SetUserInContext(r *http.Request, user *UserClaims) *http.Request
}

// UserContextKey is the key used to store user claims in the request context
type UserContextKey string

const (
	UserKey UserContextKey = "user"
)

// UserClaims represents the claims of an API token
type UserClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenAuthClient validates bearer tokens signed with a shared secret or by
// keys published in a JWKS document.
type TokenAuthClient struct {
	config *Config

	jwksOnce    sync.Once
	jwks        keyfunc.Keyfunc
	jwksInitErr error
}

// NewTokenAuthClient creates a TokenAuthClient
func NewTokenAuthClient(config *Config) (*TokenAuthClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TokenAuthClient{config: config}, nil
}

// ExtractTokenFromRequest extracts a JWT token from the Authorization header
func (c *TokenAuthClient) ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("missing or invalid Authorization header")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("missing or invalid Authorization header")
	}
	return token, nil
}

// SetUserInContext adds user claims to the request context
func (c *TokenAuthClient) SetUserInContext(r *http.Request, user *UserClaims) *http.Request {
	ctx := context.WithValue(r.Context(), UserKey, user)
	return r.WithContext(ctx)
}

// ValidateToken parses and verifies a token
func (c *TokenAuthClient) ValidateToken(ctx context.Context, tokenString string) (*UserClaims, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("request context cancelled: %w", ctx.Err())
	default:
	}

	var (
		keyFunc jwt.Keyfunc
		methods []string
	)
	if c.config.Secret != "" {
		secret := []byte(c.config.Secret)
		keyFunc = func(*jwt.Token) (any, error) { return secret, nil }
		methods = []string{jwt.SigningMethodHS256.Name, jwt.SigningMethodHS384.Name, jwt.SigningMethodHS512.Name}
	} else {
		jwks, err := c.getJWKS()
		if err != nil {
			return nil, fmt.Errorf("failed to initialise JWKS: %w", err)
		}
		keyFunc = jwks.Keyfunc
		methods = []string{jwt.SigningMethodRS256.Name, jwt.SigningMethodES256.Name}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if c.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// getJWKS returns a cached JWKS client for the configured URL
func (c *TokenAuthClient) getJWKS() (keyfunc.Keyfunc, error) {
	c.jwksOnce.Do(func() {
		url := c.config.JWKSURL
		override := keyfunc.Override{
			Client:          &http.Client{Timeout: 5 * time.Second},
			HTTPTimeout:     5 * time.Second,
			RefreshInterval: 10 * time.Minute,
			RefreshErrorHandlerFunc: func(url string) func(ctx context.Context, err error) {
				return func(ctx context.Context, err error) {
					log.Error().Err(err).Str("jwks_url", url).Msg("JWKS refresh failed")
				}
			},
		}

		childCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		c.jwks, c.jwksInitErr = keyfunc.NewDefaultOverrideCtx(childCtx, []string{url}, override)
	})

	if c.jwksInitErr != nil {
		return nil, c.jwksInitErr
	}
	return c.jwks, nil
}

// AuthMiddlewareWithClient validates JWT tokens using the provided AuthClient
func AuthMiddlewareWithClient(authClient AuthClient) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := authClient.ExtractTokenFromRequest(r)
			if err != nil {
				writeAuthError(w, "Missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := authClient.ValidateToken(r.Context(), tokenString)
			if err != nil {
				log.Warn().Err(err).Str("token_prefix", tokenString[:min(10, len(tokenString))]).Msg("JWT validation failed")

				errorMsg := "Invalid authentication token"
				statusCode := http.StatusUnauthorized

				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					errorMsg = "Authentication token has expired"
				case errors.Is(err, jwt.ErrTokenSignatureInvalid):
					errorMsg = "Invalid token signature"
					sentry.CaptureException(err)
				case strings.Contains(err.Error(), "JWKS"):
					errorMsg = "Authentication service misconfigured"
					statusCode = http.StatusInternalServerError
					sentry.CaptureException(err)
				}

				writeAuthError(w, errorMsg, statusCode)
				return
			}

			r = authClient.SetUserInContext(r, claims)
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from the request context
func GetUserFromContext(ctx context.Context) (*UserClaims, bool) {
	user, ok := ctx.Value(UserKey).(*UserClaims)
	return user, ok
}

// writeAuthError writes a standardised authentication error response. The
// request ID middleware runs first and has already set X-Request-ID.
func writeAuthError(w http.ResponseWriter, message string, statusCode int) {
	requestID := w.Header().Get("X-Request-ID")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"status":     statusCode,
		"message":    message,
		"code":       "UNAUTHORISED",
		"request_id": requestID,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode unauthorised response")
	}
}
