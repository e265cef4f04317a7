// Package auth maps presented credentials to roles.
//
// The gateway core treats role resolution as a black box behind the Resolver
// interface and never caches results across requests; key revocation must be
// observed on the next request, so caching policy belongs to the resolver
// implementation, not the caller.
package auth

import "fmt"

// Role is the privilege tier a credential resolves to. Rate limiting gives
// each role an independent budget; privilege ordering between roles is a
// downstream authorization concern, not ours.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleViewer    Role = "viewer"
	RoleOperator  Role = "operator"
	RoleAdmin     Role = "admin"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAnonymous, RoleViewer, RoleOperator, RoleAdmin}
}

// ParseRole validates a role name from configuration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAnonymous, RoleViewer, RoleOperator, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
