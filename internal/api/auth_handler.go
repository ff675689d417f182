package api

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"time"

	"CollectionVote/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	stateCookieName = "oauth_state"
	stateCookiePath = "/api/auth"
	stateTTL        = 10 * time.Minute
)

// AuthHandler OAuth 登录与登出
type AuthHandler struct {
	login      *auth.Login
	cookieName string
	clientURL  string
	logger     *logrus.Logger
}

func NewAuthHandler(login *auth.Login, cookieName, clientURL string, logger *logrus.Logger) *AuthHandler {
	if clientURL == "" {
		clientURL = "/"
	}
	return &AuthHandler{login: login, cookieName: cookieName, clientURL: clientURL, logger: logger}
}

// Login 生成 state 写入 Cookie 并跳转授权页
func (h *AuthHandler) Login(c *gin.Context) {
	state := uuid.NewString()
	setCookie(c, stateCookieName, stateCookiePath, state, time.Now().Add(stateTTL))
	c.Redirect(http.StatusFound, h.login.AuthCodeURL(state))
}

// Callback 校验 state 后完成登录，写入会话 Cookie 并跳回前端；失败时带 error 参数跳回
func (h *AuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		h.fail(c, "no_code")
		return
	}
	stored, err := c.Request.Cookie(stateCookieName)
	state := c.Query("state")
	if err != nil || stored.Value == "" || subtle.ConstantTimeCompare([]byte(stored.Value), []byte(state)) != 1 {
		h.fail(c, "invalid_state")
		return
	}
	clearCookie(c, stateCookieName, stateCookiePath)

	sess, err := h.login.Complete(c.Request.Context(), code, c.ClientIP())
	if err != nil {
		h.logger.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Warn("OAuth 登录失败")
		h.fail(c, "auth_failed")
		return
	}
	setCookie(c, h.cookieName, "/", sess.Token, sess.ExpiresAt)
	c.Redirect(http.StatusFound, h.clientURL)
}

// Logout 清除会话 Cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	clearCookie(c, h.cookieName, "/")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) fail(c *gin.Context, reason string) {
	target := h.clientURL
	if u, err := url.Parse(h.clientURL); err == nil {
		q := u.Query()
		q.Set("error", reason)
		u.RawQuery = q.Encode()
		target = u.String()
	}
	c.Redirect(http.StatusFound, target)
}

func setCookie(c *gin.Context, name, path, value string, expires time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(c *gin.Context, name, path string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
