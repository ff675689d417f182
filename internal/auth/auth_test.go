package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/config"
	"CollectionVote/internal/database"
	"CollectionVote/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const secret = "auth-test-secret-0123456789abcdef"

func newPolicy(t *testing.T, admins ...string) *Policy {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	db, err := database.Open(config.DatabaseConfig{DSN: "sqlite::memory:", MaxOpenConns: 1, LogLevel: "silent"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))
	return NewPolicy(admins, repository.NewMemberRepository(db))
}

func newResolver(t *testing.T, p *Policy) *Resolver {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r, err := NewResolver(secret, "auth_token", p, logger)
	require.NoError(t, err)
	return r
}

func issue(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	iss, err := NewIssuer(secret, ttl)
	require.NoError(t, err)
	token, _, err := iss.Issue(userID, "name-"+userID)
	require.NoError(t, err)
	return token
}

func TestResolveFromCookieAndBearer(t *testing.T) {
	p := newPolicy(t, "admin-1")
	_, err := p.Grant(context.Background(), "member-1", "Mia", true)
	require.NoError(t, err)
	r := newResolver(t, p)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: issue(t, "member-1", time.Hour)})
	id, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "member-1", id.UserID)
	require.Equal(t, "name-member-1", id.Username)
	require.True(t, id.RequiredRoleGranted)
	require.False(t, id.IsAdmin)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, "admin-1", time.Hour))
	id, err = r.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.True(t, id.IsAdmin)
	require.False(t, id.RequiredRoleGranted)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	r := newResolver(t, newPolicy(t))

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "mallory",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	forgedToken, err := forged.SignedString([]byte("other-secret-0123456789abcdefghij"))
	require.NoError(t, err)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "mallory"})
	noExpToken, err := noExp.SignedString([]byte(secret))
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":   "",
		"garbage":   "Bearer not.a.jwt",
		"expired":   "Bearer " + issue(t, "u1", -time.Minute),
		"forged":    "Bearer " + forgedToken,
		"no expiry": "Bearer " + noExpToken,
		"basic":     "Basic dXNlcjpwYXNz",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		_, err := r.Resolve(context.Background(), req)
		require.ErrorIs(t, err, apperr.ErrNotAuthenticated, name)
	}
}

func TestGrantCanRevokeRole(t *testing.T) {
	p := newPolicy(t)
	ctx := context.Background()

	m, err := p.Grant(ctx, "u1", "Uma", true)
	require.NoError(t, err)
	require.True(t, m.HasRequiredRole)

	m, err = p.Grant(ctx, "u1", "Uma B", false)
	require.NoError(t, err)
	require.False(t, m.HasRequiredRole)
	require.Equal(t, "Uma B", m.Username)

	ok, err := p.HasRequiredRole(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRejectsWeakSecret(t *testing.T) {
	for _, weak := range []string{"", "change-me", secret[:MinSecretLength-1]} {
		_, err := NewIssuer(weak, time.Hour)
		require.ErrorIs(t, err, ErrWeakSecret, weak)
		_, err = NewResolver(weak, "auth_token", nil, logrus.New())
		require.ErrorIs(t, err, ErrWeakSecret, weak)
	}

	_, err := NewIssuer(secret, time.Hour)
	require.NoError(t, err)
}
