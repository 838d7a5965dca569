package auth

import (
	"context"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string
	Role    string
}

// Guest reports whether the principal came from a guest login.
func (p Principal) Guest() bool { return strings.HasPrefix(p.Subject, guestPrefix) }

type principalKey struct{}

// WithPrincipal stores p in ctx. The role is also published to rbac so
// permission checks see it.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	return rbac.WithRole(ctx, p.Role)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// SubjectFromContext returns the caller's subject, or "" when unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Subject
}
