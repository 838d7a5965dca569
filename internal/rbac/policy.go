package rbac

import (
	"slices"
	"strings"
)

// Policy maps a role to the permissions it holds. A grant ending in "*"
// covers every permission with that prefix; "*" alone covers all of them.
type Policy map[string][]string

// Has reports whether role holds perm.
func (p Policy) Has(role, perm string) bool {
	return slices.ContainsFunc(p[role], func(grant string) bool {
		prefix, wild := strings.CutSuffix(grant, "*")
		if wild {
			return strings.HasPrefix(perm, prefix)
		}
		return grant == perm
	})
}

// Any reports whether role holds at least one of perms.
func (p Policy) Any(role string, perms ...string) bool {
	return slices.ContainsFunc(perms, func(perm string) bool { return p.Has(role, perm) })
}

