package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/iamcore/pkg/api"
	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
	essql "github.com/plaenen/iamcore/pkg/eventstore/sql"
	"github.com/plaenen/iamcore/pkg/projection"
)

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		code       connect.Code
		httpStatus int
	}{
		{"InvalidArgument", domain.NewInvalidArgument(nil, "T-1", "bad"), connect.CodeInvalidArgument, http.StatusBadRequest},
		{"NotFound", domain.NewNotFound(nil, "T-2", "gone"), connect.CodeNotFound, http.StatusNotFound},
		{"AlreadyExists", domain.NewAlreadyExists(nil, "T-3", "dup"), connect.CodeAlreadyExists, http.StatusConflict},
		{"FailedPrecondition", domain.NewFailedPrecondition(nil, "T-4", "state"), connect.CodeFailedPrecondition, http.StatusPreconditionFailed},
		{"PermissionDenied", domain.NewPermissionDenied(nil, "T-5", "no"), connect.CodePermissionDenied, http.StatusForbidden},
		{"Unavailable", domain.NewUnavailable(nil, "T-6", "down"), connect.CodeUnavailable, http.StatusServiceUnavailable},
		{"Internal", domain.NewInternal(nil, "T-7", "boom"), connect.CodeInternal, http.StatusInternalServerError},
		{"Untyped", errors.New("plain"), connect.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, api.ErrorToConnectCode(tc.err))
			assert.Equal(t, tc.httpStatus, api.ErrorToHTTPStatus(tc.err))
		})
	}

	t.Run("WrappedErrorsKeepTheirKind", func(t *testing.T) {
		wrapped := domain.NewInternal(domain.NewNotFound(nil, "T-8", "inner"), "T-9", "outer")
		// outermost kind wins
		assert.Equal(t, connect.CodeInternal, api.ErrorToConnectCode(wrapped))
	})
}

func signToken(t *testing.T, secret []byte, claims api.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestAuthenticator(t *testing.T) {
	secret := []byte("test-secret")
	auth := api.NewAuthenticator(secret, "inst-default")

	t.Run("ValidTokenFillsContext", func(t *testing.T) {
		token := signToken(t, secret, api.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Roles:      []string{"ORG_OWNER"},
			InstanceID: "inst-7",
		})

		ctx, err := auth.Authenticate(context.Background(), "Bearer "+token)
		require.NoError(t, err)

		principal := authz.PrincipalFromContext(ctx)
		assert.Equal(t, "user-1", principal.UserID)
		assert.True(t, principal.HasRole("ORG_OWNER"))

		instanceID, err := authz.InstanceIDFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "inst-7", instanceID)
	})

	t.Run("MissingInstanceClaimFallsBack", func(t *testing.T) {
		token := signToken(t, secret, api.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		})
		ctx, err := auth.Authenticate(context.Background(), "Bearer "+token)
		require.NoError(t, err)

		instanceID, err := authz.InstanceIDFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "inst-default", instanceID)
	})

	t.Run("WrongSecretRejected", func(t *testing.T) {
		token := signToken(t, []byte("other-secret"), api.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		})
		_, err := auth.Authenticate(context.Background(), "Bearer "+token)
		require.Error(t, err)
	})

	t.Run("MissingHeaderRejected", func(t *testing.T) {
		_, err := auth.Authenticate(context.Background(), "")
		require.Error(t, err)
	})
}

func TestRoleChecker(t *testing.T) {
	checker := api.NewRoleChecker()

	ctxWithRoles := func(roles ...string) context.Context {
		return authz.WithPrincipal(context.Background(), authz.Principal{UserID: "u", Roles: roles})
	}

	t.Run("IAMOwnerHoldsEverything", func(t *testing.T) {
		ctx := ctxWithRoles("IAM_OWNER")
		for _, permission := range []string{"org.write", "user.write", "project.write", "policy.write", "iam.write"} {
			assert.NoError(t, checker.CheckPermission(ctx, permission, ""))
		}
	})

	t.Run("OrgOwnerCannotWriteIAM", func(t *testing.T) {
		ctx := ctxWithRoles("ORG_OWNER")
		assert.NoError(t, checker.CheckPermission(ctx, "org.write", "org-1"))
		err := checker.CheckPermission(ctx, "iam.write", "")
		require.Error(t, err)
		assert.True(t, domain.IsPermissionDenied(err))
	})

	t.Run("AnonymousRejected", func(t *testing.T) {
		err := checker.CheckPermission(context.Background(), "org.write", "")
		require.Error(t, err)
		assert.True(t, domain.IsPermissionDenied(err))
	})
}

func TestAdminServer(t *testing.T) {
	newServer := func(t *testing.T) (*api.AdminServer, *eventstore.Eventstore) {
		t.Helper()
		db, err := database.Connect(":memory:", database.WithWALMode(false))
		require.NoError(t, err)
		storage, err := essql.NewStorage(db)
		require.NoError(t, err)
		es := eventstore.NewEventstore(storage)
		t.Cleanup(func() { es.Close() })

		registry, err := projection.NewRegistry(es, db, nil)
		require.NoError(t, err)
		return api.NewAdminServer(es, registry, nil, nil), es
	}

	t.Run("HealthzOK", func(t *testing.T) {
		server, _ := newServer(t)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("UnknownProjectionTrigger404", func(t *testing.T) {
		server, _ := newServer(t)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/projections/nope/trigger", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
	})

	t.Run("StatusListsProjections", func(t *testing.T) {
		server, _ := newServer(t)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/projections", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
