package models

import (
	"time"
)

// Category 消费类别
// 名称不区分大小写唯一，由数据访问层在写入前校验
type Category struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:50;not null;uniqueIndex"`
	Color     string    `json:"color" gorm:"size:20;default:#64748b"` // 颜色代码，如 #34d399
	Icon      string    `json:"icon" gorm:"size:16"`
	IsDefault bool      `json:"is_default" gorm:"not null;default:false"`
	Sort      int       `json:"sort" gorm:"default:0;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 设置表名
func (Category) TableName() string {
	return "categories"
}

// 未分类占位
const (
	UncategorizedName  = "Fără categorie"
	UncategorizedColor = "#94a3b8"
	UncategorizedIcon  = "🏷️"
)

// DefaultCategory 默认类别种子数据
type DefaultCategory struct {
	Name      string
	Color     string
	Icon      string
	IsDefault bool
}

// DefaultCategories 初始化时写入的类别，IsDefault 为 true 的不可删除
func DefaultCategories() []DefaultCategory {
	return []DefaultCategory{
		{"Groceries", "#34d399", "🛒", true},
		{"Transport", "#60a5fa", "🚗", true},
		{"Restaurant", "#f472b6", "🍽️", true},
		{"Household", "#facc15", "🏠", true},
		{"Entertainment", "#c084fc", "🎉", true},
		{"Health", "#f87171", "💊", true},
		{"Pets", "#22d3ee", "🐾", false},
	}
}
