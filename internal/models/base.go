package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// BaseModel defines the common fields for all models.
// It includes an auto-incrementing ID, and CreatedAt and UpdatedAt timestamps.
type BaseModel struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"` // For soft deletes
}

// IDString returns the ID as a string.
func (b *BaseModel) IDString() string {
	return strconv.FormatUint(uint64(b.ID), 10)
}

// SortPair 返回按升序排列的用户ID对。
// 所有无序的双人关系（配对、会话）都必须经过它再落库或查询，
// 以保证 (A,B) 和 (B,A) 映射到同一行。
func SortPair(userIDA, userIDB uint) (low, high uint) {
	if userIDA > userIDB {
		return userIDB, userIDA
	}
	return userIDA, userIDB
}
