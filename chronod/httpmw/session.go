// Package httpmw contains the HTTP middleware for chronod.
package httpmw

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronosdk"
)

type sessionContextKey struct{}

// Session identifies the authenticated caller. Credential issuance and
// verification belong to the surrounding platform; this subsystem only
// consumes the result through a SessionLookup.
type Session struct {
	UserID uuid.UUID
	// Admin sessions may address other users' resources; ownership checks
	// still run against the addressed user.
	Admin bool
}

// SessionLookup verifies a presented token. Returning an error means the
// token is invalid or expired; the middleware turns that into a 401.
type SessionLookup func(ctx context.Context, token string) (Session, error)

// SessionOptional may return the session from the ExtractSession handler.
func SessionOptional(r *http.Request) (Session, bool) {
	session, ok := r.Context().Value(sessionContextKey{}).(Session)
	return session, ok
}

// RequestSession returns the session from the ExtractSession handler.
func RequestSession(r *http.Request) Session {
	session, ok := SessionOptional(r)
	if !ok {
		panic("developer error: ExtractSession middleware not provided")
	}
	return session
}

// ExtractSession authenticates every request via lookup. The token is read
// from the session header, falling back to a query parameter because
// browser websockets cannot set headers.
func ExtractSession(lookup SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(chronosdk.SessionTokenHeader)
			if token == "" {
				token = r.URL.Query().Get(chronosdk.SessionTokenQuery)
			}
			if token == "" {
				httpapi.Write(ctx, rw, http.StatusUnauthorized, chronosdk.Response{
					Message: "You are signed out or your session has expired. Please sign in again to continue.",
					Detail:  "No session token provided.",
				})
				return
			}

			session, err := lookup(ctx, token)
			if err != nil {
				httpapi.Write(ctx, rw, http.StatusUnauthorized, chronosdk.Response{
					Message: "You are signed out or your session has expired. Please sign in again to continue.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, sessionContextKey{}, session)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
