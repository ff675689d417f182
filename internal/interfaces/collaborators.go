package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
)

// CollectionMetadata 藏品元数据快照
type CollectionMetadata struct {
	Name        string
	Thumbnail   string
	Description string
	FloorPrice  decimal.Decimal
	Volume24h   decimal.Decimal
	TotalItems  int64
	Raw         json.RawMessage // 提供方原始响应，可为空
}

// MetadataProvider 藏品元数据提供方
type MetadataProvider interface {
	FetchCollection(ctx context.Context, contractAddress string) (*CollectionMetadata, error)
}

// Identity 已验证的调用方身份
type Identity struct {
	UserID              string
	Username            string
	RequiredRoleGranted bool
	IsAdmin             bool
}

// IdentityResolver 从请求中解析身份；无凭证或凭证无效时返回 apperr.ErrNotAuthenticated
type IdentityResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Identity, error)
}

// AuthorizationPolicy 管理员与投票角色判定
type AuthorizationPolicy interface {
	IsAdmin(userID string) bool
	HasRequiredRole(ctx context.Context, userID string) (bool, error)
}
