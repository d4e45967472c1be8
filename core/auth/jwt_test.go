package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_IssueAndResolve(t *testing.T) {
	r := NewResolver("secret", "tunehub", time.Hour)

	token, err := r.Issue("user_123", " Alice@Example.com ", "Alice")
	require.NoError(t, err)

	id, err := r.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "user_123", id.ExternalID)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "Alice", id.Name)
}

func TestResolver_Rejects(t *testing.T) {
	r := NewResolver("secret", "tunehub", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewResolver("other", "tunehub", time.Hour).Issue("u1", "", "")
		require.NoError(t, err)
		_, err = r.Resolve(other)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewResolver("secret", "someone-else", time.Hour).Issue("u1", "", "")
		require.NoError(t, err)
		_, err = r.Resolve(other)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "tunehub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = r.Resolve(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "tunehub"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = r.Resolve(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := r.Resolve("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestResolver_Disabled(t *testing.T) {
	r := NewResolver("", "", 0)
	assert.False(t, r.Enabled())

	_, err := r.Resolve("anything")
	assert.ErrorIs(t, err, ErrAuthDisabled)
	_, err = r.Issue("u1", "", "")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name    string
		id      *Identity
		adminID string
		email   string
		want    bool
	}{
		{"nil identity", nil, "u1", "a@b.c", false},
		{"id match", &Identity{ExternalID: "u1"}, "u1", "", true},
		{"email match ignores case", &Identity{ExternalID: "u2", Email: "a@b.c"}, "u1", " A@B.C ", true},
		{"no match", &Identity{ExternalID: "u2", Email: "x@y.z"}, "u1", "a@b.c", false},
		{"nothing configured", &Identity{ExternalID: "u2", Email: ""}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAdmin(tt.id, tt.adminID, tt.email))
		})
	}
}
