package auth

import "context"

// Principal is the authenticated caller of a request
type Principal struct {
	UserID int64
	OrgIDs []int64
}

// MemberOf reports whether the principal belongs to an organization
func (p Principal) MemberOf(orgID int64) bool {
	for _, id := range p.OrgIDs {
		if id == orgID {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores the principal in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
