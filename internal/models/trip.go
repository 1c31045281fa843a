package models

import "time"

// Trip 代表一次结伴出行计划。
// 行程的创建、编辑、筛选由行程服务负责；本核心只消费
// OwnerID / MaxGroupSize / CurrentGroupSize 做容量与权限判断，
// 并在成员变动时原子地维护 CurrentGroupSize 计数。
type Trip struct {
	BaseModel
	OwnerID     uint       `gorm:"not null;index" json:"ownerId"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Destination string     `gorm:"type:varchar(255)" json:"destination,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`

	// MaxGroupSize 为 0 表示不限制人数。
	MaxGroupSize     int `gorm:"default:0" json:"maxGroupSize"`
	CurrentGroupSize int `gorm:"default:0" json:"currentGroupSize"`

	Owner   User         `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Members []TripMember `gorm:"foreignKey:TripID" json:"members,omitempty"`
}

// TableName 指定 Trip 模型的表名。
func (Trip) TableName() string {
	return "trips"
}

// IsFull reports whether the trip has reached its bounded capacity.
// Unbounded trips (MaxGroupSize == 0) are never full.
func (t *Trip) IsFull() bool {
	return t.MaxGroupSize > 0 && t.CurrentGroupSize >= t.MaxGroupSize
}

// TripMemberRole 定义用户在行程中的角色。
type TripMemberRole string

const (
	TripRoleOwner  TripMemberRole = "owner"
	TripRoleMember TripMemberRole = "member"
)

// TripMember 将用户链接到行程。
type TripMember struct {
	BaseModel
	TripID   uint           `gorm:"not null;uniqueIndex:idx_trip_member_pair" json:"tripId"`
	UserID   uint           `gorm:"not null;uniqueIndex:idx_trip_member_pair" json:"userId"`
	Role     TripMemberRole `gorm:"type:varchar(20);default:'member'" json:"role"`
	JoinedAt time.Time      `json:"joinedAt"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Trip Trip `gorm:"foreignKey:TripID" json:"trip,omitempty"`
}

// TableName 指定 TripMember 模型的表名。
func (TripMember) TableName() string {
	return "trip_members"
}

// TripRequestStatus 定义加入行程请求的状态。
type TripRequestStatus string

const (
	TripRequestStatusPending  TripRequestStatus = "pending"
	TripRequestStatusAccepted TripRequestStatus = "accepted"
	TripRequestStatusRejected TripRequestStatus = "rejected"
	TripRequestStatusExpired  TripRequestStatus = "expired"
)

// TripRequest 代表一条加入行程的请求。
// 每个 (TripID, UserID) 对至多一行；一旦离开 pending，
// 除 Dismissed 标记外不可再变更，也不允许重新回到 pending。
type TripRequest struct {
	BaseModel
	TripID  uint              `gorm:"not null;uniqueIndex:idx_trip_request_pair" json:"tripId"`
	UserID  uint              `gorm:"not null;uniqueIndex:idx_trip_request_pair" json:"userId"`
	Status  TripRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Message string            `gorm:"type:text" json:"message,omitempty"`

	// Dismissed 标记请求者已关闭"请求已被处理"的通知卡片。
	Dismissed bool `gorm:"default:false" json:"dismissed"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Trip Trip `gorm:"foreignKey:TripID" json:"trip,omitempty"`
}

// TableName 指定 TripRequest 模型的表名。
func (TripRequest) TableName() string {
	return "trip_requests"
}

// TripRequestWithUser is a DTO that includes the request along with basic
// info about the requesting user, for owner-facing listings.
type TripRequestWithUser struct {
	TripRequest
	Requester *UserBasicInfo `json:"requester"`
}
