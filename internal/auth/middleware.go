package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"sams/pkg/interfaces"
)

type contextKey struct{}

// WithIdentity stores the verified caller in ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom returns the caller stored by Authenticate
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// ErrorWriter renders an error response; the api package supplies it
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticate verifies the bearer token and, when roles are given, checks
// the role claim before the wrapped handler touches any data.
func (m *TokenManager) Authenticate(writeError ErrorWriter, next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := m.Verify(BearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := RequireRole(id, roles...); err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// RequireRole succeeds when roles is empty or contains the caller's role
func RequireRole(id *Identity, roles ...string) error {
	if len(roles) == 0 {
		return nil
	}
	for _, role := range roles {
		if id.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: requires %s", interfaces.ErrWrongRole, strings.Join(roles, " or "))
}
