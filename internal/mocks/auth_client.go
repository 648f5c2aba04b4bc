package mocks

import (
	"context"
	"net/http"

	"github.com/Harvey-AU/seo-parser/internal/auth"
	"github.com/stretchr/testify/mock"
)

// MockAuthClient is a mock implementation of auth.AuthClient
type MockAuthClient struct {
	mock.Mock
}

// ValidateToken mocks bearer token validation
func (m *MockAuthClient) ValidateToken(ctx context.Context, token string) (*auth.UserClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.UserClaims), args.Error(1)
}

// ExtractTokenFromRequest mocks token extraction from HTTP request
func (m *MockAuthClient) ExtractTokenFromRequest(r *http.Request) (string, error) {
	args := m.Called(r)
	return args.String(0), args.Error(1)
}

// SetUserInContext stores the claims the same way the real client does
func (m *MockAuthClient) SetUserInContext(r *http.Request, user *auth.UserClaims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.UserKey, user))
}
