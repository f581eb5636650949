package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// 查找表的默认数据，与线上历史数据保持相同的 ID 顺序
var (
	defaultCategories = []HabitCategory{
		{ID: 1, Label: "spiritual"},
		{ID: 2, Label: "physical"},
		{ID: 3, Label: "social"},
		{ID: 4, Label: "intellectual"},
	}
	defaultGrowthLevels = []GrowthLevel{
		{ID: 1, Label: "seedling"},
		{ID: 2, Label: "young"},
		{ID: 3, Label: "mature"},
		{ID: 4, Label: "fullygrown"},
	}
)

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 habitgarden.db。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "habitgarden.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return err
	}

	// 自动迁移模式，为核心模型创建表
	if err = DB.AutoMigrate(
		&User{},
		&HabitCategory{},
		&GrowthLevel{},
		&Habit{},
	); err != nil {
		return err
	}

	return SeedLookupTables(DB)
}

// SeedLookupTables 幂等写入类别与成长阶段查找表，已有数据时不做任何修改。
func SeedLookupTables(gdb *gorm.DB) error {
	var categoryCount int64
	if err := gdb.Model(&HabitCategory{}).Count(&categoryCount).Error; err != nil {
		return err
	}
	if categoryCount == 0 {
		if err := gdb.Create(&defaultCategories).Error; err != nil {
			return err
		}
	}

	var levelCount int64
	if err := gdb.Model(&GrowthLevel{}).Count(&levelCount).Error; err != nil {
		return err
	}
	if levelCount == 0 {
		if err := gdb.Create(&defaultGrowthLevels).Error; err != nil {
			return err
		}
	}

	return nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
