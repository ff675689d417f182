package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`    // 服务器配置
	Database  DatabaseConfig  `mapstructure:"database"`  // PostgreSQL配置
	Auth      AuthConfig      `mapstructure:"auth"`      // 身份认证配置
	Voting    VotingConfig    `mapstructure:"voting"`    // 投票规则
	Tradeport TradeportConfig `mapstructure:"tradeport"` // 藏品元数据提供方
	Redis     RedisConfig     `mapstructure:"redis"`     // 元数据缓存
	OAuth     OAuthConfig     `mapstructure:"oauth"`     // 第三方登录
	Reconcile ReconcileConfig `mapstructure:"reconcile"` // 票数对账任务
	Metrics   MetricsConfig   `mapstructure:"metrics"`   // Prometheus 指标
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int      `mapstructure:"port"`         // 服务端口
	Mode        string   `mapstructure:"mode"`         // Gin运行模式：debug/release/test
	Pprof       bool     `mapstructure:"pprof"`        // 是否注册pprof
	CORSOrigins []string `mapstructure:"cors_origins"` // 允许的前端来源
}

// DatabaseConfig 数据库连接池配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogLevel        string        `mapstructure:"log_level"`         // GORM日志级别：silent/error/warn/info
}

// AuthConfig 身份认证配置
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`     // HS256 签名密钥
	CookieName   string        `mapstructure:"cookie_name"`    // 会话Cookie名称
	TokenTTL     time.Duration `mapstructure:"token_ttl"`      // 令牌有效期
	AdminUserIDs []string      `mapstructure:"admin_user_ids"` // 管理员用户ID列表
}

// VotingConfig 投票规则配置；每人每期 5 票为固定规则，不在此配置
type VotingConfig struct {
	WinnerCount int `mapstructure:"winner_count"` // 获奖名额 K
}

// OAuthConfig Discord OAuth 登录配置，ClientID 为空时不开放登录接口
type OAuthConfig struct {
	ClientID        string   `mapstructure:"client_id"`
	ClientSecret    string   `mapstructure:"client_secret"`
	AuthURL         string   `mapstructure:"auth_url"`          // 授权页地址
	TokenURL        string   `mapstructure:"token_url"`         // 换取令牌地址
	APIBaseURL      string   `mapstructure:"api_base_url"`      // 用户信息接口基础地址
	RedirectURL     string   `mapstructure:"redirect_url"`      // 回调地址，指向 /api/auth/callback
	Scopes          []string `mapstructure:"scopes"`            // 授权范围
	GuildID         string   `mapstructure:"guild_id"`          // 校验角色的服务器ID，为空时不从 Discord 同步角色
	RequiredRoleIDs []string `mapstructure:"required_role_ids"` // 持有任一即具备投票角色
	ClientURL       string   `mapstructure:"client_url"`        // 登录完成后跳转的前端地址
	Timeout         int      `mapstructure:"timeout"`           // 请求超时（秒）
	Proxy           string   `mapstructure:"proxy"`             // 代理地址
}

// TradeportConfig 元数据接口配置
type TradeportConfig struct {
	BaseURL string `mapstructure:"base_url"` // API基础地址
	APIKey  string `mapstructure:"api_key"`  // Bearer Key
	Timeout int    `mapstructure:"timeout"`  // 请求超时（秒）
	Proxy   string `mapstructure:"proxy"`    // 代理地址
}

// RedisConfig 元数据缓存配置，Addr 为空时不启用缓存
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	MetadataTTL time.Duration `mapstructure:"metadata_ttl"`
}

// ReconcileConfig 对账任务配置，Cron 为空时不启用
type ReconcileConfig struct {
	Cron string `mapstructure:"cron"` // 带秒字段的 cron 表达式
}

// MetricsConfig 指标暴露配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig 加载配置文件（默认 ./config/config.yaml），敏感项从 .env / 环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	normalize(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("auth.cookie_name", "auth_token")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("voting.winner_count", DefaultWinnerCount)
	v.SetDefault("tradeport.timeout", 5)
	v.SetDefault("redis.metadata_ttl", 6*time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("oauth.auth_url", "https://discord.com/api/oauth2/authorize")
	v.SetDefault("oauth.token_url", "https://discord.com/api/oauth2/token")
	v.SetDefault("oauth.api_base_url", "https://discord.com/api")
	v.SetDefault("oauth.scopes", []string{"identify", "guilds.members.read"})
	v.SetDefault("oauth.client_url", "/")
	v.SetDefault("oauth.timeout", 10)
}

const DefaultWinnerCount = 15

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TRADEPORT_API_KEY"); v != "" {
		cfg.Tradeport.APIKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OAUTH_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}
	// 逗号分隔，如 ADMIN_USER_IDS=123,456
	if v := os.Getenv("ADMIN_USER_IDS"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Auth.AdminUserIDs = ids
	}
}

// normalize 非法值回落到默认值
func normalize(cfg *Config) {
	if cfg.Voting.WinnerCount <= 0 {
		cfg.Voting.WinnerCount = DefaultWinnerCount
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "auth_token"
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
}
