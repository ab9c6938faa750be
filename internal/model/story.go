package model

import (
	"time"

	"gorm.io/gorm"
)

// StoryTTL 故事存活时长,expires_at = created_at + 24h,创建后不再变化
const StoryTTL = 24 * time.Hour

// Story 短时效内容(24 小时过期)
type Story struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)"`
	OwnerID   string         `gorm:"type:varchar(36);index:idx_story_owner;not null"`
	MediaURL  string         `gorm:"type:text;not null"`
	CreatedAt time.Time      `gorm:"index"`
	ExpiresAt time.Time      `gorm:"index"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Story) TableName() string { return "stories" }

// Live 未删除且未过期
func (s *Story) Live(now time.Time) bool {
	return !s.DeletedAt.Valid && s.ExpiresAt.After(now)
}
