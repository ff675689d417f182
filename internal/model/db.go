package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Phase 周期阶段
type Phase string

const (
	PhaseSubmission Phase = "submission"
	PhaseVoting     Phase = "voting"
	PhaseWinner     Phase = "winner"
)

// Valid 是否为已知阶段
func (p Phase) Valid() bool {
	switch p {
	case PhaseSubmission, PhaseVoting, PhaseWinner:
		return true
	}
	return false
}

// Period 一个完整的 提名→投票→公布 周期。
// 进入 winner 且已产生后继周期（Sealed=true）后即为只读历史。
type Period struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"id"`
	Label        string     `gorm:"column:label;type:varchar(32);not null;comment:周期标签，如2024-06" json:"label"`
	Phase        Phase      `gorm:"column:phase;type:varchar(16);not null;comment:阶段：submission/voting/winner" json:"phase"`
	StartedAt    time.Time  `gorm:"column:started_at;type:timestamp;not null;index:idx_periods_started_at;comment:开始时间" json:"started_at"`
	EndedAt      *time.Time `gorm:"column:ended_at;type:timestamp;comment:投票结束时间" json:"ended_at,omitempty"`
	PrevPeriodID *uint64    `gorm:"column:prev_period_id;type:bigint;uniqueIndex:uk_periods_prev;comment:上一周期ID" json:"prev_period_id,omitempty"`
	Sealed       bool       `gorm:"column:sealed;type:boolean;not null;default:false;comment:是否已开启下一周期" json:"sealed"`
}

// Submission 某周期内被提名的藏品。VoteCount 为票据派生缓存，仅由投票账本修改。
type Submission struct {
	ID              uint64          `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"id"`
	ContractAddress string          `gorm:"column:contract_address;type:varchar(64);not null;uniqueIndex:uk_submissions_contract_period,priority:1;comment:合约地址（EIP-55）" json:"contract_address"`
	SubmitterID     string          `gorm:"column:submitter_id;type:varchar(64);not null;comment:提名人ID" json:"submitter_id"`
	PeriodID        uint64          `gorm:"column:period_id;type:bigint;not null;uniqueIndex:uk_submissions_contract_period,priority:2;index:idx_submissions_period;comment:所属周期ID" json:"period_id"`
	Name            string          `gorm:"column:name;type:varchar(256);not null;comment:藏品名称" json:"name"`
	Thumbnail       string          `gorm:"column:thumbnail;type:varchar(512);comment:缩略图" json:"thumbnail"`
	Description     string          `gorm:"column:description;type:text;comment:描述" json:"description"`
	FloorPrice      decimal.Decimal `gorm:"column:floor_price;type:numeric(30,10);not null;default:0;comment:地板价" json:"floor_price"`
	Volume24h       decimal.Decimal `gorm:"column:volume_24h;type:numeric(30,10);not null;default:0;comment:24小时成交额" json:"volume_24h"`
	TotalItems      int64           `gorm:"column:total_items;type:bigint;not null;default:0;comment:藏品总量" json:"total_items"`
	RawMetadata     datatypes.JSON  `gorm:"column:raw_metadata;type:jsonb;comment:元数据原始响应" json:"-"`
	VoteCount       int64           `gorm:"column:vote_count;type:bigint;not null;default:0;comment:当前有效票数" json:"vote_count"`
	SubmittedAt     time.Time       `gorm:"column:submitted_at;type:timestamp;not null;comment:提名时间" json:"submitted_at"`
}

// Vote 单个用户对某提名的一张有效票
type Vote struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"id"`
	UserID       string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uk_votes_user_submission_period,priority:1;index:idx_votes_user_period,priority:1;comment:投票人ID" json:"user_id"`
	SubmissionID uint64    `gorm:"column:submission_id;type:bigint;not null;uniqueIndex:uk_votes_user_submission_period,priority:2;index:idx_votes_submission;comment:提名ID" json:"submission_id"`
	PeriodID     uint64    `gorm:"column:period_id;type:bigint;not null;uniqueIndex:uk_votes_user_submission_period,priority:3;index:idx_votes_user_period,priority:2;comment:周期ID" json:"period_id"`
	VotedAt      time.Time `gorm:"column:voted_at;type:timestamp;not null;comment:投票时间" json:"voted_at"`
}

// VoterBallot 每个 (用户, 周期) 一行，投票事务开始时对其加行锁，串行化同一用户的并发投票
type VoterBallot struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uk_voter_ballots_user_period,priority:1;comment:投票人ID"`
	PeriodID  uint64    `gorm:"column:period_id;type:bigint;not null;uniqueIndex:uk_voter_ballots_user_period,priority:2;comment:周期ID"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;not null;comment:创建时间"`
}

// Winner 获奖快照，写入后不再修改
type Winner struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"id"`
	PeriodID       uint64    `gorm:"column:period_id;type:bigint;not null;uniqueIndex:uk_winners_period_rank,priority:1;uniqueIndex:uk_winners_period_submission,priority:1;comment:周期ID" json:"period_id"`
	SubmissionID   uint64    `gorm:"column:submission_id;type:bigint;not null;uniqueIndex:uk_winners_period_submission,priority:2;comment:提名ID" json:"submission_id"`
	Rank           int       `gorm:"column:rank;type:int;not null;uniqueIndex:uk_winners_period_rank,priority:2;comment:名次，从1开始" json:"rank"`
	FinalVoteCount int64     `gorm:"column:final_vote_count;type:bigint;not null;comment:冻结票数" json:"final_vote_count"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamp;not null;comment:创建时间" json:"created_at"`
}

// Member 社区成员及其角色状态
type Member struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"id"`
	UserID          string     `gorm:"column:user_id;type:varchar(64);uniqueIndex;not null;comment:外部身份ID" json:"user_id"`
	Username        string     `gorm:"column:username;type:varchar(128);comment:用户名" json:"username"`
	HasRequiredRole bool       `gorm:"column:has_required_role;type:boolean;not null;default:false;comment:是否具备投票角色" json:"has_required_role"`
	LastLogin       *time.Time `gorm:"column:last_login;type:timestamp;comment:最近登录时间" json:"last_login,omitempty"`
}

// LoginRecord 每次成功登录追加一条
type LoginRecord struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_login_records_user;comment:外部身份ID" json:"user_id"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(64);comment:客户端IP" json:"ip_address"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;not null;index:idx_login_records_created_at;comment:登录时间" json:"created_at"`
}

func (Period) TableName() string      { return "periods" }
func (Submission) TableName() string  { return "submissions" }
func (Vote) TableName() string        { return "votes" }
func (VoterBallot) TableName() string { return "voter_ballots" }
func (Winner) TableName() string      { return "winners" }
func (Member) TableName() string      { return "members" }
func (LoginRecord) TableName() string { return "login_records" }

// AllModels AutoMigrate 使用的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&Period{},
		&Submission{},
		&Vote{},
		&VoterBallot{},
		&Winner{},
		&Member{},
		&LoginRecord{},
	}
}
