// Package auth holds the panel's operator credentials and login sessions.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionDuration is also the cookie Max-Age.
	SessionDuration = 1 * time.Hour
	SessionCookie   = "tunnelui_session"
	BcryptCost      = 12
	MinPasswordLen  = 8
)

// ValidatePassword enforces the minimum length shared by the register
// endpoint and the admin commands.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type operatorSession struct {
	userID  uint
	expires time.Time
}

// SessionStore maps cookie tokens to panel operators. It lives in memory,
// so restarting the panel signs every operator out.
type SessionStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	byToken map[string]operatorSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		ttl:     SessionDuration,
		now:     time.Now,
		byToken: make(map[string]operatorSession),
	}
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create signs userID in and returns the cookie token.
func (s *SessionStore) Create(userID uint) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.byToken[token] = operatorSession{userID: userID, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token, nil
}

// Get resolves a cookie token. Expired tokens are treated as unknown
// and left for Cleanup.
func (s *SessionStore) Get(token string) (uint, bool) {
	s.mu.RLock()
	sess, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok || s.now().After(sess.expires) {
		return 0, false
	}
	return sess.userID, true
}

// Delete signs a token out. Unknown tokens are ignored.
func (s *SessionStore) Delete(token string) {
	s.mu.Lock()
	delete(s.byToken, token)
	s.mu.Unlock()
}

// Cleanup drops expired sessions and returns how many were removed.
func (s *SessionStore) Cleanup() int {
	now := s.now()
	removed := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.byToken {
		if now.After(sess.expires) {
			delete(s.byToken, token)
			removed++
		}
	}
	return removed
}
