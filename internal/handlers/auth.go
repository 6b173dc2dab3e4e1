package handlers

import (
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"strings"

	"github.com/IYouKnow/TunnelUI/internal/auth"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
	"github.com/IYouKnow/TunnelUI/internal/middleware"
)

// SessionStore is set from main.go during init.
var SessionStore *auth.SessionStore

type userResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func toUserResponse(u *database.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.SessionDuration.Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates a panel user. The first user can always register;
// later ones only with ALLOW_REGISTRATION.
func Register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if _, err := mail.ParseAddress(body.Email); err != nil {
		writeError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if err := auth.ValidatePassword(body.Password); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLen))
		return
	}

	count, err := database.UserCount()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if count > 0 && !config.Cfg.AllowRegistration {
		writeError(w, http.StatusForbidden, "Registration is disabled")
		return
	}
	if _, err := database.GetUserByEmail(body.Email); err == nil {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	user := &database.User{Email: body.Email, Name: strings.TrimSpace(body.Name), PasswordHash: hash}
	if err := database.CreateUser(user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	log.Printf("[auth] registered %s", logutil.SanitizeForLog(user.Email))

	sessionID, err := SessionStore.Create(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	setSessionCookie(w, r, sessionID)
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func Login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := database.GetUserByEmail(body.Email)
	if err != nil || !auth.CheckPassword(body.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	sessionID, err := SessionStore.Create(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	setSessionCookie(w, r, sessionID)
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		SessionStore.Delete(cookie.Value)
	}
	clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetCurrentUser answers null rather than 401 so the UI can check the
// session on load.
func GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
			if id, ok := SessionStore.Get(cookie.Value); ok {
				user, _ = database.GetUserByID(id)
			}
		}
	}
	if user == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
