package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

// Claims is the token payload the middleware accepts.
type Claims struct {
	jwt.RegisteredClaims

	Roles      []string `json:"roles,omitempty"`
	InstanceID string   `json:"instanceId,omitempty"`
}

// Authenticator verifies bearer tokens and fills the request context with
// the principal and the tenant.
type Authenticator struct {
	secret          []byte
	defaultInstance string
}

// NewAuthenticator builds the middleware. defaultInstance applies when the
// token carries no instance claim (single-tenant deployments).
func NewAuthenticator(secret []byte, defaultInstance string) *Authenticator {
	return &Authenticator{secret: secret, defaultInstance: defaultInstance}
}

// Middleware authenticates a request and rejects it with 401 when the token
// is missing or invalid.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"unauthenticated","message":"invalid or missing token"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate parses the Authorization header value and returns a context
// carrying the principal and instance.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (context.Context, error) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return nil, domain.NewPermissionDenied(nil, "API-ath01", "missing bearer token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, domain.NewPermissionDenied(err, "API-ath02", "invalid token")
	}
	if claims.Subject == "" {
		return nil, domain.NewPermissionDenied(nil, "API-ath03", "token without subject")
	}

	instanceID := claims.InstanceID
	if instanceID == "" {
		instanceID = a.defaultInstance
	}
	ctx = authz.WithInstanceID(ctx, instanceID)
	return authz.WithPrincipal(ctx, authz.Principal{
		UserID: claims.Subject,
		Roles:  claims.Roles,
	}), nil
}

// rolesForPermission maps each permission the command layer checks onto the
// roles that grant it. IAM_OWNER holds everything.
var rolesForPermission = map[string][]string{
	"org.write":     {"IAM_OWNER", "ORG_OWNER"},
	"user.write":    {"IAM_OWNER", "ORG_OWNER", "USER_MANAGER"},
	"project.write": {"IAM_OWNER", "ORG_OWNER", "PROJECT_OWNER"},
	"policy.write":  {"IAM_OWNER", "ORG_OWNER"},
	"iam.write":     {"IAM_OWNER"},
}

// RoleChecker implements command.PermissionChecker over the principal's
// role set.
type RoleChecker struct{}

func NewRoleChecker() *RoleChecker { return &RoleChecker{} }

// CheckPermission grants the permission when the caller holds one of the
// permission's roles.
func (RoleChecker) CheckPermission(ctx context.Context, permission, resourceOwner string) error {
	principal := authz.PrincipalFromContext(ctx)
	if principal.UserID == "" {
		return domain.NewPermissionDenied(nil, "API-prm01", "no authenticated caller")
	}
	for _, role := range rolesForPermission[permission] {
		if principal.HasRole(role) {
			return nil
		}
	}
	return domain.NewPermissionDenied(nil, "API-prm02", "missing permission "+permission)
}
