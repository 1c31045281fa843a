package models

// FollowStatus 定义关注边的状态。
type FollowStatus string

const (
	FollowStatusPending  FollowStatus = "pending"
	FollowStatusAccepted FollowStatus = "accepted"
	// 拒绝/取消/取关都直接删除边，不保留终态行。
)

// FollowEdge 代表一条有向的关注边 (follower -> following)。
// 每个有序对至多一行；FollowerID != FollowingID。
type FollowEdge struct {
	BaseModel
	FollowerID  uint         `gorm:"not null;uniqueIndex:idx_follow_edge_pair" json:"followerId"`
	FollowingID uint         `gorm:"not null;uniqueIndex:idx_follow_edge_pair" json:"followingId"`
	Status      FollowStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// DismissedByFollower 标记关注者已关闭"对方接受了你的关注"的通知卡片。
	// 与通知游标无关，两者是正交的。
	DismissedByFollower bool `gorm:"default:false" json:"dismissedByFollower"`

	Follower  User `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	Following User `gorm:"foreignKey:FollowingID" json:"following,omitempty"`
}

// TableName 指定 FollowEdge 模型的表名。
func (FollowEdge) TableName() string {
	return "follow_edges"
}

// RelationshipStatus 是从某个视角观察另一用户得到的关注关系。
type RelationshipStatus string

const (
	RelationshipSelf            RelationshipStatus = "self"
	RelationshipFollowing       RelationshipStatus = "following"
	RelationshipPendingOutgoing RelationshipStatus = "pending_outgoing"
	RelationshipPendingIncoming RelationshipStatus = "pending_incoming"
	RelationshipNotFollowing    RelationshipStatus = "not_following"
)

// FollowEdgeWithUser is a DTO pairing a follow edge with the basic info of
// the user on the other side. Useful for list API responses.
type FollowEdgeWithUser struct {
	FollowEdge
	User *UserBasicInfo `json:"user"`
}
