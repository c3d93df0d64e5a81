package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronosdk"
)

type userParamContextKey struct{}

// UserParam returns the user addressed by the {user} route parameter.
func UserParam(r *http.Request) uuid.UUID {
	userID, ok := r.Context().Value(userParamContextKey{}).(uuid.UUID)
	if !ok {
		panic("developer error: ExtractUserParam middleware not provided")
	}
	return userID
}

// ExtractUserParam resolves the {user} route parameter: "me" means the
// session user; addressing anyone else requires an admin session. Every
// downstream ownership check runs against the addressed user, so an admin
// acting on another user's behalf cannot cross-link resources.
func ExtractUserParam() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			session := RequestSession(r)

			param := chi.URLParam(r, "user")
			userID := session.UserID
			if param != "me" {
				parsed, err := uuid.Parse(param)
				if err != nil {
					httpapi.Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
						Message: "Invalid user id.",
						Detail:  err.Error(),
					})
					return
				}
				userID = parsed
			}
			if userID != session.UserID && !session.Admin {
				// Hide other users' resources rather than confirm them.
				httpapi.ResourceNotFound(ctx, rw)
				return
			}

			ctx = context.WithValue(ctx, userParamContextKey{}, userID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
