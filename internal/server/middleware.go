package server

import (
	"context"
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/novabank/novabank/internal/auth"
)

type ctxKey int

const identityKey ctxKey = iota

func identityFrom(r *http.Request) (auth.Identity, bool) {
	id, ok := r.Context().Value(identityKey).(auth.Identity)
	return id, ok
}

// Recoverer turns panics into a generic 500 without leaking internals.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic: %v\n%s", rec, debug.Stack())
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the bearer token and injects the caller identity into
// the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}
		identity, err := s.tokens.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin wraps a handler that only admins may call. It assumes
// requireAuth already ran.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFrom(r)
		if !ok || !identity.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

// canAccess reports whether the caller may act on the given account: owners
// on their own account, admins on any.
func canAccess(r *http.Request, accountID string) bool {
	identity, ok := identityFrom(r)
	if !ok {
		return false
	}
	return identity.IsAdmin() || identity.AccountID == accountID
}
