package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CollectionVote/internal/adapter"
	"CollectionVote/internal/api"
	"CollectionVote/internal/auth"
	"CollectionVote/internal/database"
	"CollectionVote/internal/metrics"
	"CollectionVote/internal/repository"
	"CollectionVote/internal/scheduler"
	"CollectionVote/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务与对账任务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := database.Close(db); err != nil {
					logger.WithError(err).Warn("关闭数据库连接失败")
				}
			}()

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(registry)

			provider, closeProvider := adapter.NewMetadataProvider(ctx, cfg, logger)
			defer func() { _ = closeProvider() }()

			repos := repository.New(db)
			winners := service.NewWinnerCalculator(repos, cfg.Voting.WinnerCount, logger)
			periods := service.NewPeriodManager(repos, winners, m, logger)
			reconciler := service.NewReconciler(repos, m, logger)

			policy := auth.NewPolicy(cfg.Auth.AdminUserIDs, repos.Members)
			resolver, err := auth.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.CookieName, policy, logger)
			if err != nil {
				return err
			}
			var login *auth.Login
			if cfg.OAuth.ClientID != "" {
				issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
				if err != nil {
					return err
				}
				login = auth.NewLogin(auth.NewOAuthClient(cfg.OAuth, logger), repos, issuer, logger)
				logger.WithField("guild_id", cfg.OAuth.GuildID).Info("已启用 OAuth 登录")
			} else {
				logger.Warn("oauth.client_id 未配置，登录接口未开放")
			}

			gin.SetMode(cfg.Server.Mode)
			logger.Infof("Gin运行模式: %s", cfg.Server.Mode)
			deps := api.Deps{
				DB:          db,
				Periods:     periods,
				Submissions: service.NewSubmissionRegistry(repos, provider, m, logger),
				Votes:       service.NewVoteLedger(repos, m, logger),
				Winners:     winners,
				Reconciler:  reconciler,
				Resolver:    resolver,
				Login:       login,
				Metrics:     m,
				Logger:      logger,
				CookieName:  cfg.Auth.CookieName,
				ClientURL:   cfg.OAuth.ClientURL,
				CORSOrigins: cfg.Server.CORSOrigins,
				Pprof:       cfg.Server.Pprof,
			}
			if cfg.Metrics.Enabled {
				deps.MetricsPath = cfg.Metrics.Path
			}
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           api.NewRouter(deps),
				ReadHeaderTimeout: 10 * time.Second,
			}

			var sched *scheduler.Scheduler
			if cfg.Reconcile.Cron != "" {
				sched, err = scheduler.New(ctx, cfg.Reconcile.Cron, reconciler, logger)
				if err != nil {
					return fmt.Errorf("解析对账cron失败: %w", err)
				}
				sched.Start()
				defer sched.Stop()
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Infof("服务启动成功，端口：%d", cfg.Server.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("启动服务失败: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("收到退出信号，开始优雅关闭")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}
