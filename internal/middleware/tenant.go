// Package middleware resolves the tenant identity on incoming requests.
// Handlers read the tenant from the request context and thread it as an
// explicit argument into every core operation.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
)

type contextKey string

const tenantKey contextKey = "tenantID"

// TenantHeader is honored when no token verifier is configured (development
// and single-operator deployments).
const TenantHeader = "X-Tenant-ID"

// TokenVerifier validates bearer tokens. Satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// TenantMiddleware extracts the tenant identity from each request. With a
// verifier, the tenant is the authenticated user's UID; without one, the
// tenant is taken from the X-Tenant-ID header.
type TenantMiddleware struct {
	verifier TokenVerifier
}

// NewTenantMiddleware creates the middleware. verifier may be nil for
// header-based tenancy.
func NewTenantMiddleware(verifier TokenVerifier) *TenantMiddleware {
	return &TenantMiddleware{verifier: verifier}
}

// RequireTenant rejects requests without a resolvable tenant.
func (m *TenantMiddleware) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := m.resolve(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *TenantMiddleware) resolve(r *http.Request) (string, bool) {
	if m.verifier == nil {
		tenant := r.Header.Get(TenantHeader)
		return tenant, tenant != ""
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}

	token, err := m.verifier.VerifyIDToken(r.Context(), parts[1])
	if err != nil {
		return "", false
	}
	return token.UID, true
}

// GetTenant extracts the tenant ID from the request context.
func GetTenant(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantKey).(string)
	return tenantID, ok && tenantID != ""
}
