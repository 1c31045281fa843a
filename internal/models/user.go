package models

import "time"

// VerificationStatus 定义用户身份认证审核的结果。
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// User 代表系统中的用户。
// 用户的注册、资料编辑由账号服务负责；本核心只读取用户记录，
// 唯一的写入是通知游标和各类通知的 dismissed 标记。
type User struct {
	BaseModel
	Username  string `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Nickname  string `gorm:"type:varchar(100)" json:"nickname,omitempty"`
	AvatarURL string `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	Bio       string `gorm:"type:text" json:"bio,omitempty"`

	// Deactivated 是软停用标记，所有读路径都必须过滤它。
	Deactivated bool `gorm:"default:false;index" json:"deactivated"`
	// OnboardingCompleted 未完成引导的用户不会出现在发现页。
	OnboardingCompleted bool `gorm:"default:false" json:"onboardingCompleted"`

	// 通知游标：上次查看通知中心的时间。为 null 表示从未查看。
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`

	// 认证结果通知（聚合器子项 1）。
	VerificationStatus    VerificationStatus `gorm:"type:varchar(20);default:'none'" json:"verificationStatus"`
	VerifiedAt            *time.Time         `json:"verifiedAt,omitempty"`
	VerificationDismissed bool               `gorm:"default:false" json:"verificationDismissed"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

// UserBasicInfo holds minimal public information about a user.
// Used for scenarios like displaying the requester in a follow request.
type UserBasicInfo struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
