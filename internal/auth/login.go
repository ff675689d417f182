package auth

import (
	"context"
	"fmt"
	"time"

	"CollectionVote/internal/model"
	"CollectionVote/internal/repository"

	"github.com/sirupsen/logrus"
)

const maxIPLength = 64

// Session 登录成功后签发的会话
type Session struct {
	Token     string
	ExpiresAt time.Time
	Member    *model.Member
}

// Login 完成 OAuth 回调：登记成员、记录登录并签发会话令牌
type Login struct {
	oauth  *OAuthClient
	repos  *repository.Repositories
	issuer *Issuer
	now    func() time.Time
	logger *logrus.Logger
}

func NewLogin(oauth *OAuthClient, repos *repository.Repositories, issuer *Issuer, logger *logrus.Logger) *Login {
	return &Login{oauth: oauth, repos: repos, issuer: issuer, now: time.Now, logger: logger}
}

func (l *Login) AuthCodeURL(state string) string {
	return l.oauth.AuthCodeURL(state)
}

// Complete 成员登记、登录时间与登录记录在同一事务内写入
func (l *Login) Complete(ctx context.Context, code, ip string) (*Session, error) {
	user, err := l.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(ip) > maxIPLength {
		ip = ip[:maxIPLength]
	}

	now := l.now()
	var member *model.Member
	err = l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		granted := user.HasRequiredRole
		if !user.RoleSynced {
			existing, err := tx.Members.FindByUserID(ctx, user.ID)
			if err != nil {
				return err
			}
			granted = existing != nil && existing.HasRequiredRole
		}
		m := &model.Member{UserID: user.ID, Username: user.Username, HasRequiredRole: granted}
		if err := tx.Members.Upsert(ctx, m); err != nil {
			return err
		}
		if err := tx.Members.TouchLogin(ctx, user.ID, now); err != nil {
			return err
		}
		if err := tx.Logins.Create(ctx, &model.LoginRecord{UserID: user.ID, IPAddress: ip, CreatedAt: now}); err != nil {
			return err
		}
		member, err = tx.Members.FindByUserID(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("登记登录失败: %w", err)
	}

	token, expires, err := l.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{
		"user_id":           user.ID,
		"has_required_role": member.HasRequiredRole,
		"role_synced":       user.RoleSynced,
	}).Info("用户登录成功")
	return &Session{Token: token, ExpiresAt: expires, Member: member}, nil
}
