package api

import (
	"strconv"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/interfaces"
	"CollectionVote/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	identityKey     = "identity"
)

// RequestID 透传或生成 X-Request-ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog 记录访问日志并按路由统计请求数
func AccessLog(logger *logrus.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.HTTPRequest(route, strconv.Itoa(status))
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Info("http request")
	}
}

// Authenticate 解析调用方身份，失败时返回 401（存储异常为 503）
func Authenticate(resolver interfaces.IdentityResolver, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.Request.Context(), c.Request)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole 需具备投票角色，须在 Authenticate 之后
func RequireRole(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := identityFrom(c); id == nil || !id.RequiredRoleGranted {
			writeError(c, logger, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequireAdmin 需为管理员，须在 Authenticate 之后
func RequireAdmin(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := identityFrom(c); id == nil || !id.IsAdmin {
			writeError(c, logger, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) *interfaces.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*interfaces.Identity)
	return id
}
