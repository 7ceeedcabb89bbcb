package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/efir-portal/efir-api/models"
)

// SessionCookie is the name of the cookie carrying the session token
const SessionCookie = "access_token"

// ErrInvalidToken is returned when a token is malformed, forged or expired
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of a session token
type Claims struct {
	ID   string      `json:"id"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions returns a Sessions signing with secret. Tokens expire after ttl.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl}
}

// TTL is the lifetime of issued tokens
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new token for u
func (s *Sessions) Issue(u models.User) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		ID:   u.ID.Hex(),
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.Hex(),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims, nil
}

// Parse verifies the signature and expiry of token and returns its claims
func (s *Sessions) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// TokenFromRequest reads a bearer header, falling back to the session cookie.
// An explicit header wins so a stale cookie cannot shadow it.
func TokenFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		if token := strings.TrimSpace(h[7:]); token != "" {
			return token
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// SetSessionCookie writes token as an HttpOnly strict cookie
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie on the client
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
