package auth

import "context"

// Principal is the authenticated organization attached to a request.
type Principal struct {
	OrgID              uint
	Email              string
	Organization       string
	MustChangePassword bool
}

type principalKey struct{}

// WithPrincipal 返回携带机构身份的子上下文。
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom 取出中间件注入的机构身份。
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.OrgID != 0
}
