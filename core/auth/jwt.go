// Package auth resolves the session tokens issued by the external identity
// provider into the stable external id that keys presence and users.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAuthDisabled is returned when no signing secret is configured.
	ErrAuthDisabled = errors.New("authentication is not configured")
	// ErrInvalidToken is returned for malformed, expired or unsigned tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is what the identity provider vouches for.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
}

// Claims is the token payload. The subject is the external id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Resolver validates HS256 session tokens.
type Resolver struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewResolver builds a resolver. An empty issuer accepts any issuer.
func NewResolver(secret, issuer string, expiry time.Duration) *Resolver {
	return &Resolver{secret: []byte(secret), issuer: issuer, expiry: expiry}
}

// Enabled reports whether tokens can be validated.
func (r *Resolver) Enabled() bool {
	return r != nil && len(r.secret) > 0
}

// Issue signs a token for externalID. Used for local development and tests;
// production tokens come from the identity provider.
func (r *Resolver) Issue(externalID, email, name string) (string, error) {
	if !r.Enabled() {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(externalID) == "" {
		return "", errors.New("external id required")
	}

	now := time.Now()
	claims := Claims{
		Email: strings.TrimSpace(email),
		Name:  strings.TrimSpace(name),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  externalID,
			Issuer:   r.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if r.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(r.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}

// Resolve validates token and returns the identity it carries.
func (r *Resolver) Resolve(token string) (*Identity, error) {
	if !r.Enabled() {
		return nil, ErrAuthDisabled
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		ExternalID: claims.Subject,
		Email:      strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:       strings.TrimSpace(claims.Name),
	}, nil
}

// IsAdmin matches the identity against the configured admin id first and
// the admin email second.
func IsAdmin(id *Identity, adminExternalID, adminEmail string) bool {
	if id == nil {
		return false
	}
	if adminExternalID != "" && id.ExternalID == adminExternalID {
		return true
	}
	adminEmail = strings.ToLower(strings.TrimSpace(adminEmail))
	return adminEmail != "" && id.Email != "" && id.Email == adminEmail
}
