package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/IYouKnow/TunnelUI/internal/auth"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/database"
)

type contextKey string

const userContextKey contextKey = "user"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
}

// RequireAuth rejects requests without a valid session cookie. With
// AUTH_DISABLED the first registered user (if any) is attached instead.
func RequireAuth(store *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Cfg.AuthDisabled {
				if user, err := database.GetFirstUser(); err == nil {
					r = r.WithContext(WithUser(r.Context(), user))
				}
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				unauthorized(w)
				return
			}
			userID, ok := store.Get(cookie.Value)
			if !ok {
				unauthorized(w)
				return
			}
			user, err := database.GetUserByID(userID)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user *database.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func GetUser(r *http.Request) *database.User {
	user, _ := r.Context().Value(userContextKey).(*database.User)
	return user
}
