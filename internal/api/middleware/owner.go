package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/cardforge/cardforge-api/internal/api/shared"
)

// OwnerIDHeader carries the authenticated owner identity. The service runs
// behind a gateway that authenticates the caller and injects this header;
// requests reaching this service directly without it are rejected.
const OwnerIDHeader = "X-Owner-ID"

// RequireOwner extracts the owner ID from the gateway-injected header and
// stores it in the request context for the handlers.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OwnerIDHeader)
		if raw == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing owner identity")
			return
		}

		ownerID, err := uuid.Parse(raw)
		if err != nil || ownerID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid owner identity")
			return
		}

		ctx := context.WithValue(r.Context(), shared.OwnerIDContextKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
