package db

import (
	"time"

	"gorm.io/gorm"
)

// Habit 定义了习惯模型
// Frequency 支持 daily/weekly/monthly，未识别的值按 daily 处理（宽松策略）
// Streak 记录连续完成次数，GrowthLevelID 始终由 Streak 推导，仅为展示冗余存储
// LatestCompletion 为空表示从未完成
// PublicID 作为对外的不透明标识，避免暴露自增主键
type Habit struct {
	gorm.Model
	PublicID         string `gorm:"size:36;uniqueIndex"`
	UserID           uint   `gorm:"index;not null"`
	User             User   `gorm:"constraint:OnDelete:CASCADE"`
	CategoryID       uint   `gorm:"not null"`
	Category         HabitCategory
	Name             string `gorm:"size:150;not null"`
	Description      string
	Frequency        string `gorm:"size:20;not null"`
	Streak           int    `gorm:"default:0"`
	GrowthLevelID    int    `gorm:"default:1"`
	LatestCompletion *time.Time
}

// HabitCategory 是习惯类别查找表，随数据库初始化一次性写入
type HabitCategory struct {
	ID    uint   `gorm:"primaryKey"`
	Label string `gorm:"size:100;not null"`
}

// GrowthLevel 是成长阶段查找表（seedling/young/mature/fullygrown）
type GrowthLevel struct {
	ID    uint   `gorm:"primaryKey"`
	Label string `gorm:"size:50;not null"`
}

// TableName 保持与历史数据一致的复数表名
func (HabitCategory) TableName() string {
	return "habit_categories"
}

func (GrowthLevel) TableName() string {
	return "growth_levels"
}
