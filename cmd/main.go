package main

import (
	"fmt"
	"os"

	"CollectionVote/internal/config"
	"CollectionVote/internal/database"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"gorm.io/gorm"
)

const programName = "collection-vote"

var globalFlags = struct {
	configFile string
	debug      bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "NFT 藏品月度提名与投票服务",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&globalFlags.configFile, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "输出调试日志")

	rootCmd.AddCommand(
		serveCommand(),
		bootstrapCommand(),
		reconcileCommand(),
		issueTokenCommand(),
		grantRoleCommand(),
		loginsCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commonRun 加载配置并初始化日志
func commonRun() (*config.Config, *logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	if globalFlags.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	// 按容器 CPU 配额设置 GOMAXPROCS
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Infof)); err != nil {
		logger.WithError(err).Warn("设置GOMAXPROCS失败")
	}

	cfg, err := config.LoadConfig(globalFlags.configFile)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("配置文件加载成功")
	return cfg, logger, nil
}

// openDatabase 连接数据库并迁移表结构
func openDatabase(cfg *config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("数据库表结构迁移失败: %w", err)
	}
	logger.Info("数据库表结构检查完成（不存在则已创建）")
	return db, nil
}
