package api

import (
	"net/http"
	"time"

	"CollectionVote/internal/auth"
	"CollectionVote/internal/database"
	"CollectionVote/internal/interfaces"
	"CollectionVote/internal/metrics"
	"CollectionVote/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps 路由依赖
type Deps struct {
	DB          *gorm.DB
	Periods     *service.PeriodManager
	Submissions *service.SubmissionRegistry
	Votes       *service.VoteLedger
	Winners     *service.WinnerCalculator
	Reconciler  *service.Reconciler
	Resolver    interfaces.IdentityResolver
	Login       *auth.Login // 为空时不开放 OAuth 登录
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger

	CookieName  string
	ClientURL   string // 登录完成后跳转的前端地址
	CORSOrigins []string
	Pprof       bool
	MetricsPath string // 为空时不暴露指标
}

// NewRouter 注册全部路由
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(d.Logger, d.Metrics), gin.Recovery())

	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	// 注册pprof 方便调试和监测性能问题
	if d.Pprof {
		pprof.Register(r)
	}
	if d.MetricsPath != "" {
		r.GET(d.MetricsPath, gin.WrapH(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	r.GET("/healthz", func(c *gin.Context) {
		if err := database.Ping(d.DB); err != nil {
			d.Logger.WithError(err).Error("数据库健康检查失败")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	periodHandler := NewPeriodHandler(d.Periods, d.Winners, d.Reconciler, d.Logger)
	ballotHandler := NewBallotHandler(d.Periods, d.Submissions, d.Votes, d.Logger)
	authHandler := NewAuthHandler(d.Login, d.CookieName, d.ClientURL, d.Logger)

	api := r.Group("/api")
	api.GET("/period", periodHandler.GetCurrentPeriod)
	api.GET("/periods", periodHandler.ListPeriods)
	api.GET("/submissions", ballotHandler.ListSubmissions)
	api.GET("/winners", periodHandler.GetWinners)
	api.POST("/auth/logout", authHandler.Logout)
	if d.Login != nil {
		api.GET("/auth/login", authHandler.Login)
		api.GET("/auth/callback", authHandler.Callback)
	}

	member := api.Group("", Authenticate(d.Resolver, d.Logger), RequireRole(d.Logger))
	member.POST("/submissions", ballotHandler.Submit)
	member.GET("/votes", ballotHandler.ListMyVotes)
	member.POST("/votes", ballotHandler.ToggleVote)

	admin := api.Group("/admin", Authenticate(d.Resolver, d.Logger), RequireAdmin(d.Logger))
	admin.POST("/advance", periodHandler.Advance)
	admin.POST("/reconcile", periodHandler.Reconcile)

	return r
}
