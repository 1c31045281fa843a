package models

// MatchStatus 定义配对的状态。
type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusAccepted MatchStatus = "accepted"
	MatchStatusRejected MatchStatus = "rejected"
	MatchStatusExpired  MatchStatus = "expired"
)

// Match 代表两个用户之间的配对（无序对）。
// 为保证每对用户至多一行，存储时恒有 UserIDLow < UserIDHigh；
// 任何插入或查询都必须先经过 SortPair。
type Match struct {
	BaseModel
	UserIDLow  uint        `gorm:"not null;uniqueIndex:idx_match_pair" json:"userIdLow"`
	UserIDHigh uint        `gorm:"not null;uniqueIndex:idx_match_pair" json:"userIdHigh"`
	Status     MatchStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// InitiatedBy 是最近一次推动状态机的一方：
	// pending 时是发起者，rejected 时是拒绝者。
	InitiatedBy uint `gorm:"not null" json:"initiatedBy"`

	// 每一侧独立的"已读配对成功卡片"标记。
	DismissedBySideLow  bool `gorm:"default:false" json:"dismissedBySideLow"`
	DismissedBySideHigh bool `gorm:"default:false" json:"dismissedBySideHigh"`
}

// TableName 指定 Match 模型的表名。
func (Match) TableName() string {
	return "matches"
}

// EnsureCanonicalOrder swaps the pair so that UserIDLow < UserIDHigh.
// It must be called before creating a Match record.
func (m *Match) EnsureCanonicalOrder() {
	if m.UserIDLow > m.UserIDHigh {
		m.UserIDLow, m.UserIDHigh = m.UserIDHigh, m.UserIDLow
	}
}

// Involves reports whether the given user is one side of the match.
func (m *Match) Involves(userID uint) bool {
	return m.UserIDLow == userID || m.UserIDHigh == userID
}

// OtherSide returns the opposite user of the pair. The caller must ensure
// userID is one of the two sides.
func (m *Match) OtherSide(userID uint) uint {
	if m.UserIDLow == userID {
		return m.UserIDHigh
	}
	return m.UserIDLow
}

// DismissedBy reports the dismissal flag of the given side.
func (m *Match) DismissedBy(userID uint) bool {
	if m.UserIDLow == userID {
		return m.DismissedBySideLow
	}
	return m.DismissedBySideHigh
}

// MatchWithPeer is a DTO pairing a match with the basic info of the user
// on the other side. Useful for list API responses.
type MatchWithPeer struct {
	Match
	Peer *UserBasicInfo `json:"peer"`
}
