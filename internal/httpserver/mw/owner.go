package mw

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// OwnerHeader carries the caller identity set by the authenticating proxy.
const OwnerHeader = "X-Owner-ID"

type ownerKey struct{}

// RequireOwner rejects requests without an owner id with 401 and stores the
// id in the request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			writeStatus(w, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

// WithOwner returns a copy of ctx carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner stored by RequireOwner, or "".
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func writeStatus(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(code)})
}
