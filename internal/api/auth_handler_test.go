package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"CollectionVote/internal/config"

	"github.com/stretchr/testify/require"
)

// newFakeDiscord 只接受 good-code，成员持有角色 r1
func newFakeDiscord(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/users/@me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"discord-7","username":"gil"}`))
	})
	mux.HandleFunc("/api/users/@me/guilds/guild-1/member", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"roles":["r0","r1"]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newLoginAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	srv := newFakeDiscord(t)
	return newAPIEnv(t, config.OAuthConfig{
		ClientID:        "app-1",
		ClientSecret:    "app-secret",
		AuthURL:         srv.URL + "/oauth2/authorize",
		TokenURL:        srv.URL + "/oauth2/token",
		APIBaseURL:      srv.URL + "/api",
		RedirectURL:     "http://localhost/api/auth/callback",
		Scopes:          []string{"identify"},
		GuildID:         "guild-1",
		RequiredRoleIDs: []string{"r1"},
		ClientURL:       "http://localhost:3000/",
		Timeout:         2,
	})
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// startLogin 走一次 /api/auth/login，返回 state Cookie
func (e *apiEnv) startLogin(t *testing.T) *http.Cookie {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/auth/login", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	state := findCookie(w, stateCookieName)
	require.NotNil(t, state)
	require.True(t, state.HttpOnly)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/oauth2/authorize", loc.Path)
	require.Equal(t, state.Value, loc.Query().Get("state"))
	require.Equal(t, "app-1", loc.Query().Get("client_id"))
	return state
}

func (e *apiEnv) callback(t *testing.T, query string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?"+query, nil)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestLoginRoutesDisabledWithoutOAuth(t *testing.T) {
	env := newAPIEnv(t)
	w := env.do(t, http.MethodGet, "/api/auth/login", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallbackSetsSessionCookie(t *testing.T) {
	env := newLoginAPIEnv(t)
	state := env.startLogin(t)

	w := env.callback(t, "code=good-code&state="+url.QueryEscape(state.Value), state)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	require.Equal(t, "http://localhost:3000/", w.Header().Get("Location"))
	session := findCookie(w, "auth_token")
	require.NotNil(t, session)
	require.NotEmpty(t, session.Value)
	require.True(t, session.HttpOnly)
	require.Greater(t, session.MaxAge, 0)
	cleared := findCookie(w, stateCookieName)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)

	ok, err := env.policy.HasRequiredRole(context.Background(), "discord-7")
	require.NoError(t, err)
	require.True(t, ok)

	// 会话 Cookie 可直接访问成员接口
	_, err = env.periods.Bootstrap(context.Background(), "2024-06")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/votes", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: session.Value})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 5, decode(t, rec)["remaining"])
}

func TestCallbackFailuresRedirectWithError(t *testing.T) {
	env := newLoginAPIEnv(t)
	state := env.startLogin(t)
	forged := &http.Cookie{Name: stateCookieName, Value: "forged"}

	for name, tc := range map[string]struct {
		query   string
		cookies []*http.Cookie
		reason  string
	}{
		"no code":        {query: "state=" + state.Value, cookies: []*http.Cookie{state}, reason: "no_code"},
		"missing cookie": {query: "code=good-code&state=" + state.Value, reason: "invalid_state"},
		"state mismatch": {query: "code=good-code&state=" + state.Value, cookies: []*http.Cookie{forged}, reason: "invalid_state"},
		"rejected code":  {query: "code=stolen-code&state=" + state.Value, cookies: []*http.Cookie{state}, reason: "auth_failed"},
	} {
		w := env.callback(t, tc.query, tc.cookies...)
		require.Equal(t, http.StatusFound, w.Code, name)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err, name)
		require.Equal(t, tc.reason, loc.Query().Get("error"), name)
		require.Nil(t, findCookie(w, "auth_token"), name)
	}

	ok, err := env.policy.HasRequiredRole(context.Background(), "discord-7")
	require.NoError(t, err)
	require.False(t, ok)
}
