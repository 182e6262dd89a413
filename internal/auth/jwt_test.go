package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTVerifier_IssueAndVerify(t *testing.T) {
	v := NewJWTVerifier(testSecret, "markwell-idp", "markwell", 15*time.Minute)

	token, claims, err := v.IssueToken(Principal{UserID: "user-123", Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "markwell-idp", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, &Principal{UserID: "user-123", Email: "ada@example.com", Name: "Ada"}, p)
}

func TestJWTVerifier_DefaultTTL(t *testing.T) {
	v := NewJWTVerifier(testSecret, "", "", 0)
	assert.Equal(t, time.Hour, v.ttl)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "markwell-idp", "markwell", time.Minute)
	ctx := context.Background()

	sign := func(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	valid := func() *TokenClaims {
		now := time.Now()
		return &TokenClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "markwell-idp",
			Audience:  jwt.ClaimStrings{"markwell"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := sign(t, "another-secret-another-secret-xx", jwt.SigningMethodHS256, valid())
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		c := valid()
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.Verify(ctx, sign(t, testSecret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("missing expiry", func(t *testing.T) {
		c := valid()
		c.ExpiresAt = nil
		_, err := v.Verify(ctx, sign(t, testSecret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := valid()
		c.Issuer = "someone-else"
		_, err := v.Verify(ctx, sign(t, testSecret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := valid()
		c.Audience = jwt.ClaimStrings{"other-app"}
		_, err := v.Verify(ctx, sign(t, testSecret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other hmac algorithm", func(t *testing.T) {
		_, err := v.Verify(ctx, sign(t, testSecret, jwt.SigningMethodHS512, valid()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty subject", func(t *testing.T) {
		c := valid()
		c.Subject = ""
		_, err := v.Verify(ctx, sign(t, testSecret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrMissingSubject)
	})
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), &Principal{UserID: "u1"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)

	_, ok = PrincipalFromContext(WithPrincipal(context.Background(), nil))
	assert.False(t, ok)
}
