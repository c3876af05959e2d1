// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/capitalize-ai/persona-chat/internal/identity"
)

// AnonymousUserHeader carries the anonymous user id a visitor was given.
const AnonymousUserHeader = "X-Anonymous-User-ID"

type contextKey int

const credentialsKey contextKey = iota

// Session copies the caller's bearer token, anonymous user id and address into
// the request context. It never rejects; the identity resolver decides what a
// request may do.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := identity.Credentials{
			Token:           bearerToken(r.Header.Get("Authorization")),
			AnonymousUserID: strings.TrimSpace(r.Header.Get(AnonymousUserHeader)),
			RemoteAddr:      r.RemoteAddr,
		}
		next.ServeHTTP(w, r.WithContext(WithCredentials(r.Context(), creds)))
	})
}

// WithCredentials stores creds in ctx.
func WithCredentials(ctx context.Context, creds identity.Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey, creds)
}

// Credentials returns the credentials stored by Session.
func Credentials(ctx context.Context) identity.Credentials {
	creds, _ := ctx.Value(credentialsKey).(identity.Credentials)
	return creds
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
