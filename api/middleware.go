package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-logr/logr"

	"github.com/vaultdrive/vaultdrive/quota"
)

type contextKey int

const ownerIDContextKey contextKey = iota

// extractBearerToken pulls the token out of an "Authorization: Bearer ..."
// header.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// ownerIDFromContext returns the authenticated owner id set by AuthContext,
// if any.
func ownerIDFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerIDContextKey).(string)
	return ownerID, ok
}

// AuthContext verifies the session bearer token on every request, resolves
// it to an owner id, provisions that owner's quota row on first touch, and
// stores the owner id in the request context. This is the AuthContext
// provider collaborator spec §6 names.
func AuthContext(verifier *SessionVerifier, ledger *quota.Ledger, defaultTierID string, logger logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				writeError(w, err)
				return
			}
			ownerID := claims.OwnerID()
			if ownerID == "" {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "token carries no subject")
				return
			}

			if err := ledger.EnsureUser(r.Context(), ownerID, defaultTierID); err != nil {
				logger.Error(err, "failed to provision quota row", "ownerID", ownerID)
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDContextKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
