package model

import (
	"time"
)

// User 用户账户表
// balance 以“点数”计，1 点 = 1 次发布；管理员视作余额无限，不参与扣减
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`       // 聊天平台用户ID
	Username  string    `gorm:"type:varchar(128)" json:"username"`         // 展示名
	Balance   int64     `gorm:"not null;default:0" json:"balance"`         // 可用点数
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`    // 管理员标记
	Version   int       `gorm:"not null;default:0" json:"version"`         // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
