package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/models"
)

type contextKey int

const (
	userKey contextKey = iota
	claimsKey
)

// WithUser returns a copy of ctx carrying the authenticated user
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the user attached by Authenticate
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok && u != nil
}

// ClaimsFromContext returns the token claims attached by Authenticate
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// Authenticator resolves the session token on a request into a user
type Authenticator struct {
	Sessions *Sessions
	Users    databases.UserDatabase
	Denylist Denylist
}

// Authenticate rejects requests without a valid, unrevoked session and
// attaches the current user to the request context
func (a Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			config.ErrorStatus("Unauthorized request", http.StatusUnauthorized, w, nil)
			return
		}

		claims, err := a.Sessions.Parse(token)
		if err != nil {
			config.ErrorStatus("Invalid or expired token", http.StatusForbidden, w, err)
			return
		}

		if a.Denylist != nil {
			revoked, err := a.Denylist.IsRevoked(r.Context(), claims.RegisteredClaims.ID)
			if err != nil {
				zap.S().Warnw("failed to check token revocation", "error", err)
			}
			if revoked {
				config.ErrorStatus("Session has been logged out", http.StatusUnauthorized, w, nil)
				return
			}
		}

		id, err := primitive.ObjectIDFromHex(claims.ID)
		if err != nil {
			config.ErrorStatus("Invalid or expired token", http.StatusForbidden, w, err)
			return
		}

		ctx, cancel := WithQueryTimeout(r.Context())
		defer cancel()
		user, err := a.Users.FindByID(ctx, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			config.ErrorStatus("User no longer exists", http.StatusUnauthorized, w, nil)
			return
		}
		if err != nil {
			config.ErrorStatus("failed to load session user", http.StatusInternalServerError, w, err)
			return
		}

		ctx = context.WithValue(WithUser(r.Context(), user), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthorizeRoles only lets users holding one of roles through. It must run
// after Authenticate.
func AuthorizeRoles(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				config.ErrorStatus("Unauthorized request", http.StatusUnauthorized, w, nil)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			config.ErrorStatus(fmt.Sprintf("Role %s is not allowed to access this resource", user.Role), http.StatusForbidden, w, nil)
		})
	}
}

// Recoverer turns a panicking handler into a 500 response
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zap.S().Errorw("panic while serving request",
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()))
				config.ErrorStatus("Internal server error", http.StatusInternalServerError, w, errors.New(fmt.Sprint(rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
