package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// User is the canonical identity returned by login and signup.
type User struct {
	ID       string         `json:"id" yaml:"id"`
	Email    string         `json:"email" yaml:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty" yaml:"user_metadata,omitempty"`
}

// AuthResult is the normalized outcome of login or signup.
// ConfirmationRequired is set when signup succeeded without issuing a token.
type AuthResult struct {
	AccessToken          string
	User                 User
	ConfirmationRequired bool
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponsePayload struct {
	AccessToken  string         `json:"access_token"`
	User         *User          `json:"user"`
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var payload authResponsePayload
	err := c.doJSON(ctx, apiCall{
		method: http.MethodPost,
		path:   "/login",
		body:   credentialsPayload{Email: email, Password: password},
	}, &payload)
	if err != nil {
		return AuthResult{}, err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return AuthResult{}, fmt.Errorf("%w: login response missing access_token", ErrMalformedResponse)
	}
	user, ok := payload.normalizedUser(email)
	if !ok {
		return AuthResult{}, fmt.Errorf("%w: login response missing user", ErrMalformedResponse)
	}
	return AuthResult{AccessToken: payload.AccessToken, User: user}, nil
}

// Signup registers an account. The user may arrive nested under "user" or at the root;
// both shapes are normalized here so nothing downstream sees the difference.
func (c *Client) Signup(ctx context.Context, email, password string) (AuthResult, error) {
	var payload authResponsePayload
	err := c.doJSON(ctx, apiCall{
		method: http.MethodPost,
		path:   "/signup",
		body:   credentialsPayload{Email: email, Password: password},
	}, &payload)
	if err != nil {
		return AuthResult{}, err
	}
	user, ok := payload.normalizedUser(email)
	if !ok {
		return AuthResult{}, fmt.Errorf("%w: signup response missing user", ErrMalformedResponse)
	}
	token := strings.TrimSpace(payload.AccessToken)
	return AuthResult{
		AccessToken:          token,
		User:                 user,
		ConfirmationRequired: token == "",
	}, nil
}

func (p authResponsePayload) normalizedUser(fallbackEmail string) (User, bool) {
	user := User{}
	switch {
	case p.User != nil && strings.TrimSpace(p.User.ID) != "":
		user = *p.User
	case strings.TrimSpace(p.ID) != "":
		user = User{ID: p.ID, Email: p.Email, Metadata: p.UserMetadata}
	default:
		return User{}, false
	}
	if strings.TrimSpace(user.Email) == "" {
		user.Email = strings.TrimSpace(fallbackEmail)
	}
	return user, true
}
