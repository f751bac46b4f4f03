package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession indicates that no credential is held; the user is logged out.
	ErrNoSession = errors.New("session: not logged in")
	// ErrSessionExpired indicates that the held credential expired and was discarded.
	ErrSessionExpired = errors.New("session: token expired")
	// ErrMissingToken indicates an attempt to save a session without a bearer token.
	ErrMissingToken = errors.New("session: token required")
	// ErrMissingUserID indicates an attempt to save a session without an identity.
	ErrMissingUserID = errors.New("session: user id required")
)

// Session is the authenticated identity plus its bearer credential.
type Session struct {
	UserID      string    `json:"user_id" yaml:"user_id"`
	Email       string    `json:"email" yaml:"email"`
	AccessToken string    `json:"-" yaml:"-"`
	ExpiresAt   time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	SavedAt     time.Time `json:"saved_at,omitempty" yaml:"saved_at,omitempty"`
}

// New builds a session for the identity, reading expiry from the token when it is a JWT.
func New(userID, email, accessToken string) Session {
	current := Session{
		UserID:      strings.TrimSpace(userID),
		Email:       normalizeEmail(email),
		AccessToken: strings.TrimSpace(accessToken),
	}
	if claims, err := ParseTokenClaims(current.AccessToken); err == nil {
		if claims.ExpiresAt != nil {
			current.ExpiresAt = claims.ExpiresAt.Time.UTC()
		}
		if current.UserID == "" {
			current.UserID = strings.TrimSpace(claims.Subject)
		}
		if current.Email == "" {
			current.Email = normalizeEmail(claims.Email)
		}
	}
	return current
}

// Validate reports whether the session can be persisted.
func (s Session) Validate() error {
	if strings.TrimSpace(s.AccessToken) == "" {
		return ErrMissingToken
	}
	if strings.TrimSpace(s.UserID) == "" {
		return ErrMissingUserID
	}
	return nil
}

// Expired reports whether the token carried an expiry that has passed.
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// TokenClaims is the subset of bearer token claims the client inspects.
type TokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseTokenClaims decodes JWT claims without verifying the signature.
// The backend remains the authority on validity; the client only reads expiry and identity hints.
func ParseTokenClaims(token string) (TokenClaims, error) {
	claims := TokenClaims{}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return claims, ErrMissingToken
	}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(trimmed, &claims); err != nil {
		return TokenClaims{}, err
	}
	return claims, nil
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
