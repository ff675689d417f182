package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"CollectionVote/internal/config"
	"CollectionVote/internal/database"
	"CollectionVote/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiscord 模拟令牌交换、用户信息与服务器成员接口
type fakeDiscord struct {
	roles        []string
	memberStatus int
}

func (f *fakeDiscord) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-1", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/users/@me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"discord-1","username":"dora"}`))
	})
	mux.HandleFunc("/api/users/@me/guilds/guild-1/member", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		if f.memberStatus != 0 {
			w.WriteHeader(f.memberStatus)
			return
		}
		roles := `[]`
		if len(f.roles) > 0 {
			roles = `["` + f.roles[0] + `"]`
		}
		_, _ = w.Write([]byte(`{"roles":` + roles + `}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func oauthConfig(baseURL, guildID string) config.OAuthConfig {
	return config.OAuthConfig{
		ClientID:        "app-1",
		ClientSecret:    "app-secret",
		AuthURL:         baseURL + "/oauth2/authorize",
		TokenURL:        baseURL + "/oauth2/token",
		APIBaseURL:      baseURL + "/api",
		RedirectURL:     "http://localhost/api/auth/callback",
		Scopes:          []string{"identify", "guilds.members.read"},
		GuildID:         guildID,
		RequiredRoleIDs: []string{"r1", "r2"},
		Timeout:         2,
	}
}

type loginEnv struct {
	repos  *repository.Repositories
	login  *Login
	policy *Policy
}

func newLoginEnv(t *testing.T, cfg config.OAuthConfig) *loginEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	db, err := database.Open(config.DatabaseConfig{DSN: "sqlite::memory:", MaxOpenConns: 1, LogLevel: "silent"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	repos := repository.New(db)
	iss, err := NewIssuer(secret, time.Hour)
	require.NoError(t, err)
	return &loginEnv{
		repos:  repos,
		login:  NewLogin(NewOAuthClient(cfg, logger), repos, iss, logger),
		policy: NewPolicy(nil, repos.Members),
	}
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	env := newLoginEnv(t, oauthConfig("https://discord.example", "guild-1"))

	u, err := url.Parse(env.login.AuthCodeURL("state-1"))
	require.NoError(t, err)
	require.Equal(t, "/oauth2/authorize", u.Path)
	q := u.Query()
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "app-1", q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "identify guilds.members.read", q.Get("scope"))
	require.Equal(t, "http://localhost/api/auth/callback", q.Get("redirect_uri"))
}

func TestLoginSyncsRoleAndRecordsLogin(t *testing.T) {
	srv := (&fakeDiscord{roles: []string{"r2"}}).server(t)
	env := newLoginEnv(t, oauthConfig(srv.URL, "guild-1"))
	ctx := context.Background()

	sess, err := env.login.Complete(ctx, "good-code", "203.0.113.7")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.True(t, sess.ExpiresAt.After(time.Now()))
	require.Equal(t, "discord-1", sess.Member.UserID)
	require.Equal(t, "dora", sess.Member.Username)
	require.True(t, sess.Member.HasRequiredRole)
	require.NotNil(t, sess.Member.LastLogin)

	records, err := env.repos.Logins.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "discord-1", records[0].UserID)
	require.Equal(t, "203.0.113.7", records[0].IPAddress)

	// 签发的令牌可被解析为具备投票角色的身份
	r := newResolver(t, env.policy)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	id, err := r.Resolve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "discord-1", id.UserID)
	require.Equal(t, "dora", id.Username)
	require.True(t, id.RequiredRoleGranted)

	_, err = env.login.Complete(ctx, "good-code", "203.0.113.8")
	require.NoError(t, err)
	records, err = env.repos.Logins.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "203.0.113.8", records[0].IPAddress)
}

func TestLoginRevokesRoleWhenMemberLookupFails(t *testing.T) {
	srv := (&fakeDiscord{memberStatus: http.StatusNotFound}).server(t)
	env := newLoginEnv(t, oauthConfig(srv.URL, "guild-1"))
	ctx := context.Background()
	_, err := env.policy.Grant(ctx, "discord-1", "dora", true)
	require.NoError(t, err)

	sess, err := env.login.Complete(ctx, "good-code", "")
	require.NoError(t, err)
	require.False(t, sess.Member.HasRequiredRole)
}

func TestLoginWithoutGuildKeepsGrantedRole(t *testing.T) {
	srv := (&fakeDiscord{}).server(t)
	env := newLoginEnv(t, oauthConfig(srv.URL, ""))
	ctx := context.Background()

	sess, err := env.login.Complete(ctx, "good-code", "")
	require.NoError(t, err)
	require.False(t, sess.Member.HasRequiredRole)

	_, err = env.policy.Grant(ctx, "discord-1", "dora", true)
	require.NoError(t, err)
	sess, err = env.login.Complete(ctx, "good-code", "")
	require.NoError(t, err)
	require.True(t, sess.Member.HasRequiredRole)
}

func TestLoginRejectsBadCode(t *testing.T) {
	srv := (&fakeDiscord{roles: []string{"r1"}}).server(t)
	env := newLoginEnv(t, oauthConfig(srv.URL, "guild-1"))
	ctx := context.Background()

	_, err := env.login.Complete(ctx, "stolen-code", "")
	require.Error(t, err)

	m, err := env.repos.Members.FindByUserID(ctx, "discord-1")
	require.NoError(t, err)
	require.Nil(t, m)
	records, err := env.repos.Logins.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, records)
}
