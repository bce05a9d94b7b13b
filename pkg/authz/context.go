// Package authz carries the caller's identity and tenant through the
// context. Command handlers read the principal as event creator and the
// instance as tenant scope; the API layer fills both in.
package authz

import (
	"context"

	"github.com/plaenen/iamcore/pkg/domain"
)

type contextKey int8

const (
	principalKey contextKey = iota
	instanceKey
)

// Principal is the authenticated caller.
type Principal struct {
	// UserID identifies the caller; recorded as event creator.
	UserID string

	// Roles are the caller's granted roles, consumed by permission checks.
	Roles []string
}

// HasRole reports whether the principal carries the role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithPrincipal stores the caller in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller, or the zero Principal.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}

// WithInstanceID stores the tenant in the context.
func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, instanceKey, instanceID)
}

// InstanceIDFromContext returns the tenant, or an error when missing.
// Every row and event carries an instance; operating without one is a bug.
func InstanceIDFromContext(ctx context.Context) (string, error) {
	instanceID, _ := ctx.Value(instanceKey).(string)
	if instanceID == "" {
		return "", domain.NewInvalidArgument(nil, "AUTHZ-i8Mss", "instance not set on context")
	}
	return instanceID, nil
}
