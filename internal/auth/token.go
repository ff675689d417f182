package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/interfaces"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Claims 会话令牌载荷：sub 为外部身份ID，name 为展示用户名
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// MinSecretLength HS256 密钥最短字节数
const MinSecretLength = 32

// ErrWeakSecret 签名密钥为空或过短
var ErrWeakSecret = fmt.Errorf("auth.jwt_secret 未配置或短于 %d 字节", MinSecretLength)

func checkSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return ErrWeakSecret
	}
	return nil
}

// Issuer 签发 HS256 会话令牌
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue 返回签名令牌及其过期时间
func (i *Issuer) Issue(userID, username string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("userID 不能为空")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, expires, nil
}

// Resolver 校验会话令牌（Cookie 或 Authorization: Bearer），并结合授权策略得到完整身份
type Resolver struct {
	secret     []byte
	cookieName string
	policy     interfaces.AuthorizationPolicy
	logger     *logrus.Logger
}

func NewResolver(secret, cookieName string, policy interfaces.AuthorizationPolicy, logger *logrus.Logger) (*Resolver, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}
	return &Resolver{secret: []byte(secret), cookieName: cookieName, policy: policy, logger: logger}, nil
}

func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*interfaces.Identity, error) {
	raw := r.extract(req)
	if raw == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	claims, err := r.parse(raw)
	if err != nil {
		r.logger.WithError(err).Debug("会话令牌无效")
		return nil, apperr.ErrNotAuthenticated
	}

	granted, err := r.policy.HasRequiredRole(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &interfaces.Identity{
		UserID:              claims.Subject,
		Username:            claims.Name,
		RequiredRoleGranted: granted,
		IsAdmin:             r.policy.IsAdmin(claims.Subject),
	}, nil
}

func (r *Resolver) extract(req *http.Request) string {
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := req.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (r *Resolver) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("令牌缺少 sub")
	}
	return claims, nil
}
