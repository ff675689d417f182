package auth

import (
	"context"

	"CollectionVote/internal/model"
	"CollectionVote/internal/repository"
)

// Policy 管理员来自配置名单，投票角色来自 members 表
type Policy struct {
	admins  map[string]struct{}
	members repository.MemberRepository
}

func NewPolicy(adminIDs []string, members repository.MemberRepository) *Policy {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &Policy{admins: admins, members: members}
}

func (p *Policy) IsAdmin(userID string) bool {
	_, ok := p.admins[userID]
	return ok
}

// HasRequiredRole 未登记的用户视为无角色
func (p *Policy) HasRequiredRole(ctx context.Context, userID string) (bool, error) {
	m, err := p.members.FindByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.HasRequiredRole, nil
}

// Grant 登记成员并设置角色
func (p *Policy) Grant(ctx context.Context, userID, username string, granted bool) (*model.Member, error) {
	m := &model.Member{UserID: userID, Username: username, HasRequiredRole: granted}
	if err := p.members.Upsert(ctx, m); err != nil {
		return nil, err
	}
	return p.members.FindByUserID(ctx, userID)
}
