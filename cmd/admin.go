package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"CollectionVote/internal/auth"
	"CollectionVote/internal/database"
	"CollectionVote/internal/repository"
	"CollectionVote/internal/service"

	"github.com/spf13/cobra"
)

// printJSON 以缩进 JSON 输出到标准输出
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func bootstrapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap [label]",
		Short: "创建首个周期（仅可执行一次），label 缺省为当前月份",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			label := ""
			if len(args) == 1 {
				label = args[0]
			}
			repos := repository.New(db)
			winners := service.NewWinnerCalculator(repos, cfg.Voting.WinnerCount, logger)
			p, err := service.NewPeriodManager(repos, winners, nil, logger).Bootstrap(cmd.Context(), label)
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
}

func reconcileCommand() *cobra.Command {
	var periodID uint64
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "以票据为准修正提名票数",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			report, err := service.NewReconciler(repository.New(db), nil, logger).Run(cmd.Context(), periodID)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().Uint64Var(&periodID, "period-id", 0, "周期ID，缺省为当前周期")
	return cmd
}

func issueTokenCommand() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "issue-token <user-id>",
		Short: "为用户签发会话令牌",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			if username == "" {
				username = args[0]
			}
			token, expiresAt, err := issuer.Issue(args[0], username)
			if err != nil {
				return err
			}
			if err := repository.New(db).Members.TouchLogin(cmd.Context(), args[0], time.Now().UTC()); err != nil {
				logger.WithError(err).Warn("更新最近登录时间失败")
			}
			return printJSON(map[string]interface{}{
				"token":       token,
				"expires_at":  expiresAt,
				"cookie_name": cfg.Auth.CookieName,
			})
		},
	}
	cmd.Flags().StringVar(&username, "name", "", "用户名，缺省同 user-id")
	return cmd
}

func grantRoleCommand() *cobra.Command {
	var (
		username string
		revoke   bool
	)
	cmd := &cobra.Command{
		Use:   "grant-role <user-id>",
		Short: "授予（或撤销）用户投票角色",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			if username == "" {
				username = args[0]
			}
			policy := auth.NewPolicy(cfg.Auth.AdminUserIDs, repository.New(db).Members)
			member, err := policy.Grant(cmd.Context(), args[0], username, !revoke)
			if err != nil {
				return fmt.Errorf("更新角色失败: %w", err)
			}
			return printJSON(member)
		},
	}
	cmd.Flags().StringVar(&username, "name", "", "用户名，缺省同 user-id")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "撤销角色")
	return cmd
}

func loginsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logins",
		Short: "导出最近的登录记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			records, err := repository.New(db).Logins.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "最多输出条数，0 为全部")
	return cmd
}
