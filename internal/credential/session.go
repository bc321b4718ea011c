package credential

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/health-notify/internal/model"
)

// TokenEnv overrides the keyring token when set.
const TokenEnv = "HEALTHNOTIFY_TOKEN"

var (
	// ErrNoToken is returned when neither the environment nor the keyring
	// hold a token.
	ErrNoToken = errors.New("no API token configured; run with -login <token>")

	// ErrExpired is returned by Session.Token once the token has expired.
	ErrExpired = errors.New("session expired")
)

// Session is the signed-in user as described by the bearer token. The
// token is decoded, not verified: the server verifies it on every call.
type Session struct {
	UserID    string
	Role      model.Role
	Name      string
	ExpiresAt time.Time

	token string
	now   func() time.Time
}

// LoadSession reads the token from $HEALTHNOTIFY_TOKEN or the keyring and
// decodes it.
func LoadSession() (*Session, error) {
	token := strings.TrimSpace(os.Getenv(TokenEnv))
	if token == "" {
		stored, err := Get(TokenKey)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoToken
		}
		if err != nil {
			return nil, err
		}
		token = strings.TrimSpace(stored)
	}
	if token == "" {
		return nil, ErrNoToken
	}
	return ParseSession(token)
}

// ParseSession decodes the claims of a JWT bearer token.
func ParseSession(token string) (*Session, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}

	s := &Session{token: token, now: time.Now}
	s.UserID = firstClaim(claims, "userId", "user_id", "sub", "id")
	if s.UserID == "" {
		return nil, fmt.Errorf("decoding token: %w", jwt.ErrTokenInvalidClaims)
	}
	s.Role = model.Role(strings.ToLower(roleClaim(claims)))
	s.Name = firstClaim(claims, "name", "fullName", "email")

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// Token returns the bearer token. It satisfies api.TokenSource.
func (s *Session) Token() (string, error) {
	if s.Expired() {
		return "", ErrExpired
	}
	return s.token, nil
}

// Expired reports whether the token carries an expiry in the past.
func (s *Session) Expired() bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.now().Before(s.ExpiresAt)
}

// Label is the user as shown in the header.
func (s *Session) Label() string {
	name := s.Name
	if name == "" {
		name = s.UserID
	}
	if s.Role == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, s.Role)
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// roleClaim accepts "role" as a string or "roles" as a list, with or
// without a ROLE_ prefix.
func roleClaim(claims jwt.MapClaims) string {
	role := firstClaim(claims, "role")
	if role == "" {
		if roles, ok := claims["roles"].([]interface{}); ok && len(roles) > 0 {
			role, _ = roles[0].(string)
		}
	}
	return strings.TrimPrefix(strings.ToUpper(role), "ROLE_")
}
