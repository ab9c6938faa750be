package model

import "time"

// User 用户信息(feed 拼装只需要 username 和头像)
type User struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	Username          string `gorm:"type:varchar(64);uniqueIndex;not null"`
	ProfilePictureURL string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (User) TableName() string { return "users" }
