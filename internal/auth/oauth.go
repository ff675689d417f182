package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CollectionVote/internal/config"
	"CollectionVote/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const maxOAuthBodyBytes = 1 << 20

// ExternalUser OAuth 登录换得的外部身份
type ExternalUser struct {
	ID       string
	Username string

	// RoleSynced 为 false 表示未配置 guild_id，角色沿用 members 表中的现值
	RoleSynced      bool
	HasRequiredRole bool
}

// OAuthClient Discord 授权码登录
type OAuthClient struct {
	conf       oauth2.Config
	apiBaseURL string
	guildID    string
	roles      map[string]struct{}
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewOAuthClient(cfg config.OAuthConfig, logger *logrus.Logger) *OAuthClient {
	roles := make(map[string]struct{}, len(cfg.RequiredRoleIDs))
	for _, id := range cfg.RequiredRoleIDs {
		if id = strings.TrimSpace(id); id != "" {
			roles[id] = struct{}{}
		}
	}
	return &OAuthClient{
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		apiBaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		guildID:    cfg.GuildID,
		roles:      roles,
		httpClient: httpclient.NewHTTPClient(httpclient.Options{
			Proxy:   cfg.Proxy,
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}, logger),
		logger: logger,
	}
}

// AuthCodeURL 授权页跳转地址
func (o *OAuthClient) AuthCodeURL(state string) string {
	return o.conf.AuthCodeURL(state)
}

// Exchange 用授权码换取访问令牌并查询用户信息。
// 配置了 guild_id 时查询成员角色，查询失败按无投票角色处理。
func (o *OAuthClient) Exchange(ctx context.Context, code string) (*ExternalUser, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	tok, err := o.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("换取访问令牌失败: %w", err)
	}
	client := o.conf.Client(ctx, tok)

	var me struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
	}
	if err := o.getJSON(ctx, client, "/users/@me", &me); err != nil {
		return nil, err
	}
	if me.ID == "" {
		return nil, errors.New("用户信息缺少 id")
	}
	user := &ExternalUser{ID: me.ID, Username: me.Username}
	if user.Username == "" {
		user.Username = me.GlobalName
	}
	if o.guildID == "" {
		return user, nil
	}

	user.RoleSynced = true
	var member struct {
		Roles []string `json:"roles"`
	}
	path := "/users/@me/guilds/" + url.PathEscape(o.guildID) + "/member"
	if err := o.getJSON(ctx, client, path, &member); err != nil {
		o.logger.WithError(err).WithField("user_id", me.ID).Warn("查询服务器成员失败，按无投票角色处理")
		return user, nil
	}
	for _, id := range member.Roles {
		if _, ok := o.roles[id]; ok {
			user.HasRequiredRole = true
			break
		}
	}
	return user, nil
}

func (o *OAuthClient) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOAuthBodyBytes))
	if err != nil {
		return fmt.Errorf("读取 %s 响应失败: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s 返回状态码 %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析 %s 响应失败: %w", path, err)
	}
	return nil
}
