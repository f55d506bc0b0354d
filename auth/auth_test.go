package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := a.Issue("admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := a.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "admin", subject)
}

func TestVerifyRejectsExpiredTokens(t *testing.T) {
	t.Parallel()

	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = a.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	issuer, err := New("secret-one", time.Hour)
	require.NoError(t, err)
	verifier, err := New("secret-two", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherSigningMethods(t *testing.T) {
	t.Parallel()

	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = a.Verify(hs512)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = a.Verify("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	t.Parallel()

	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = a.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New("", time.Hour)
	require.Error(t, err)

	a, err := New("s", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultTTL, a.ttl)
}

func TestIssueRequiresUsername(t *testing.T) {
	t.Parallel()

	a, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = a.Issue("")
	require.Error(t, err)
}
