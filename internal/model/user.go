package model

import (
	"time"
)

// ============================================================================
// 用户角色
// ============================================================================
//
// 【关键点】角色是封闭枚举，不允许随意扩展
// 是否受积分限制只通过 Unlimited() 判断，业务代码不直接比较字符串
// ============================================================================

// Role 用户角色
type Role string

const (
	RoleUser  Role = "USER"  // 普通用户，按积分计量
	RoleAdmin Role = "ADMIN" // 管理员，不受积分限制
)

// Valid 校验角色取值
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Unlimited 是否为不限量账户
// 不限量账户的扣费永远成功且不写流水
func (r Role) Unlimited() bool {
	return r == RoleAdmin
}

// User 用户表
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	Name         string    `gorm:"type:varchar(64)" json:"name"`
	Role         Role      `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
