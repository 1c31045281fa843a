package storage

import (
	"context"

	"gorm.io/gorm"
)

// Repositories 将全部仓储接口捆绑在一起，便于在一个事务内
// 拿到绑定同一个 *gorm.DB 的仓储实例。
type Repositories struct {
	Users         UserRepository
	Follows       FollowRepository
	Matches       MatchRepository
	Trips         TripRepository
	TripRequests  TripRequestRepository
	Conversations ConversationRepository
	Engagements   EngagementRepository
}

// NewGormRepositories constructs the full repository set bound to db,
// which may be either the root connection or a transaction handle.
func NewGormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         NewGormUserRepository(db),
		Follows:       NewGormFollowRepository(db),
		Matches:       NewGormMatchRepository(db),
		Trips:         NewGormTripRepository(db),
		TripRequests:  NewGormTripRequestRepository(db),
		Conversations: NewGormConversationRepository(db),
		Engagements:   NewGormEngagementRepository(db),
	}
}

// TransactionManager 在单个数据库事务内执行一段工作单元。
// fn 中的仓储全部绑定到同一事务；fn 返回错误则整体回滚。
type TransactionManager interface {
	Do(ctx context.Context, fn func(repos Repositories) error) error
}

type gormTransactionManager struct {
	db *gorm.DB
}

// NewGormTransactionManager creates a TransactionManager backed by GORM
// transactions.
func NewGormTransactionManager(db *gorm.DB) TransactionManager {
	return &gormTransactionManager{db: db}
}

func (m *gormTransactionManager) Do(ctx context.Context, fn func(repos Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepositories(tx))
	})
}
