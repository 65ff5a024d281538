package entitlement

import (
	"context"

	"github.com/google/uuid"
)

// User is the authenticated caller as seen by the gate.
// TenantID is uuid.Nil for users outside a tenant (for example platform staff).
type User struct {
	ID         string
	TenantID   uuid.UUID
	Superadmin bool
}

// HasTenant reports whether the user acts within a tenant.
func (u *User) HasTenant() bool {
	return u != nil && u.TenantID != uuid.Nil
}

type userCtxKey struct{}

// WithUser stores the user in the context.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext returns the user stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
