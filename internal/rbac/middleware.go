package rbac

import (
	"context"
	"net/http"
)

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}

// Can reports whether the role in ctx holds perm under RolePermissions.
func Can(ctx context.Context, perm string) bool {
	return RolePermissions.Has(RoleFromContext(ctx), perm)
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return RequireAny(perm)
}

// RequireAny rejects the request with 403 unless the caller's role holds at
// least one of perms.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !RolePermissions.Any(RoleFromContext(r.Context()), perms...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
