package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef-test-secret"

var lightParams = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	req := require.New(t)
	hasher := NewPasswordHasher(lightParams)

	hash, err := hasher.Hash("correct horse")
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := hasher.Compare("correct horse", hash)
	req.NoError(err)
	req.True(match)

	match, err = hasher.Compare("battery staple", hash)
	req.NoError(err)
	req.False(match)

	// parameters come from the hash
	match, err = NewPasswordHasher(DefaultParams).Compare("correct horse", hash)
	req.NoError(err)
	req.True(match)

	_, err = hasher.Compare("x", "not-a-hash")
	req.Error(err)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(secret, time.Hour)

	token, err := issuer.Issue(domain.Identity{UserID: "u1", DisplayName: "alice"})
	req.NoError(err)

	claims, err := issuer.Verify(token)
	req.NoError(err)
	req.Equal(domain.Identity{UserID: "u1", DisplayName: "alice"}, claims.Identity())
}

func TestTokenIssuer_RejectsBadTokens(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(secret, time.Hour)

	other, err := NewTokenIssuer("another-secret-of-enough-length", time.Hour).
		Issue(domain.Identity{UserID: "u1"})
	req.NoError(err)
	_, err = issuer.Verify(other)
	req.Error(err)

	expired := NewTokenIssuer(secret, time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(domain.Identity{UserID: "u1"})
	req.NoError(err)
	_, err = issuer.Verify(old)
	req.ErrorIs(err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)
	_, err = issuer.Verify(unsigned)
	req.Error(err)
}

func TestTokenResolver(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(secret, time.Hour)
	resolver := NewTokenResolver(issuer)

	token, err := issuer.Issue(domain.Identity{UserID: "u1", DisplayName: "alice"})
	req.NoError(err)

	ident, err := resolver.Resolve(context.Background(), token)
	req.NoError(err)
	req.Equal("u1", ident.UserID)

	_, err = resolver.Resolve(context.Background(), "")
	req.ErrorIs(err, domain.ErrInvalidCredential)

	_, err = resolver.Resolve(context.Background(), "garbage")
	req.ErrorIs(err, domain.ErrInvalidCredential)
}

func TestTokenFromRequest(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	req.Equal("from-query", TokenFromRequest(r, "token"))

	r.Header.Set("Authorization", "Bearer from-header")
	req.Equal("from-header", TokenFromRequest(r, "token"))

	r.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	req.Equal("from-cookie", TokenFromRequest(r, "token"))

	empty := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Empty(TokenFromRequest(empty, "token"))
}
