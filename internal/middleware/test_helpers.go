package middleware

import (
	"net/http"

	"github.com/IYouKnow/TunnelUI/internal/database"
)

// WithUserForTest attaches a User to the request context for testing.
func WithUserForTest(r *http.Request, user *database.User) *http.Request {
	return r.WithContext(WithUser(r.Context(), user))
}
