package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habitgarden/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrHabitNotFound 在指定习惯不存在或不属于请求用户时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrHabitInvalidInput 当名称为空或类别不存在时返回
	ErrHabitInvalidInput = errors.New("invalid habit input")
)

// HabitService 负责 Habit 数据的增删改查与打卡流程
// 所有查询都按 userID 过滤，保证用户间的基本隔离
type HabitService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// HabitInput 定义创建/更新习惯时可配置字段
// Frequency 未识别时按 daily 处理，不会报错
type HabitInput struct {
	Name        string
	Description string
	CategoryID  uint
	Frequency   string
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB, logger *zap.Logger) *HabitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HabitService{db: gdb, logger: logger}
}

// List 返回指定用户的全部习惯，附带类别信息，按创建先后倒序
func (s *HabitService) List(userID uint) ([]db.Habit, error) {
	var habits []db.Habit
	if err := s.db.Preload("Category").
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

// Get 根据 ID 获取习惯，范围限定在指定用户内
func (s *HabitService) Get(id, userID uint) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.Preload("Category").
		Where("id = ? AND user_id = ?", id, userID).
		First(&habit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯：连胜从 0 开始，成长阶段为幼苗，从未完成
func (s *HabitService) Create(userID uint, input HabitInput) (*db.Habit, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	habit := db.Habit{
		PublicID:      uuid.NewString(),
		UserID:        userID,
		CategoryID:    input.CategoryID,
		Name:          strings.TrimSpace(input.Name),
		Description:   strings.TrimSpace(input.Description),
		Frequency:     NormalizeFrequency(input.Frequency),
		Streak:        0,
		GrowthLevelID: GrowthSeedling,
	}

	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 更新习惯的可编辑字段。
// 成长阶段始终由未变的连胜重新推导，不接受外部赋值。
func (s *HabitService) Update(id, userID uint, input HabitInput) (*db.Habit, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.Get(id, userID)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.CategoryID = input.CategoryID
	existing.Frequency = NormalizeFrequency(input.Frequency)
	existing.GrowthLevelID = ClassifyGrowth(existing.Streak)

	if err := s.db.Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	return existing, nil
}

// Delete 删除指定用户的习惯，物理删除
func (s *HabitService) Delete(id, userID uint) error {
	if err := s.db.Unscoped().
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&db.Habit{}).Error; err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

// Complete 执行一次打卡。
// 资格校验与状态写入通过条件更新合并为一次原子操作：
// UPDATE 以读取时的 latest_completion 作为乐观并发标记，
// 两个并发请求基于同一快照时只有一个能写入成功，落败方视作未到窗口。
func (s *HabitService) Complete(id, userID uint, now time.Time) (*db.Habit, error) {
	habit, err := s.Get(id, userID)
	if err != nil {
		return nil, err
	}
	return s.completeWithSnapshot(*habit, now)
}

func (s *HabitService) completeWithSnapshot(habit db.Habit, now time.Time) (*db.Habit, error) {
	if err := CheckEligibility(habit, now).Err(); err != nil {
		return nil, err
	}

	next := nextCompletionState(habit, now)

	query := s.db.Model(&db.Habit{}).
		Where("id = ? AND user_id = ?", habit.ID, habit.UserID)
	if habit.LatestCompletion == nil {
		query = query.Where("latest_completion IS NULL")
	} else {
		query = query.Where("latest_completion = ?", *habit.LatestCompletion)
	}

	result := query.Updates(map[string]any{
		"streak":            next.Streak,
		"growth_level_id":   next.GrowthLevelID,
		"latest_completion": next.LatestCompletion,
	})
	if result.Error != nil {
		return nil, fmt.Errorf("complete habit: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// 快照已过期：要么习惯被删除，要么另一个请求先完成了打卡
		fresh, err := s.Get(habit.ID, habit.UserID)
		if err != nil {
			return nil, err
		}
		if eligErr := CheckEligibility(*fresh, now).Err(); eligErr != nil {
			return nil, eligErr
		}
		return nil, fmt.Errorf("%w: habit was completed concurrently", ErrHabitNotEligible)
	}

	return &next, nil
}

// ComposeForOwner 组装用户的习惯列表视图。
// 检测到成长阶段漂移时异步写回修正，读取路径不等待结果。
func (s *HabitService) ComposeForOwner(userID uint, search string, now time.Time) ([]DecoratedHabit, ListStats, error) {
	habits, err := s.List(userID)
	if err != nil {
		return nil, ListStats{}, err
	}

	items, stats, corrections := Compose(habits, search, now)
	if len(corrections) > 0 {
		go s.applyGrowthCorrections(corrections)
	}

	return items, stats, nil
}

// applyGrowthCorrections 将推导出的成长阶段写回数据库。
// 自愈动作：失败仅记录日志，绝不向上抛出。
func (s *HabitService) applyGrowthCorrections(corrections []GrowthCorrection) {
	for _, correction := range corrections {
		err := s.db.Model(&db.Habit{}).
			Where("id = ?", correction.HabitID).
			UpdateColumn("growth_level_id", correction.Level).Error
		if err != nil {
			s.logger.Warn("growth level correction failed",
				zap.Uint("habit_id", correction.HabitID),
				zap.Int("level", correction.Level),
				zap.Error(err),
			)
		}
	}
}

func (s *HabitService) validateInput(input HabitInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrHabitInvalidInput)
	}

	var count int64
	if err := s.db.Model(&db.HabitCategory{}).
		Where("id = ?", input.CategoryID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: unknown category %d", ErrHabitInvalidInput, input.CategoryID)
	}

	return nil
}
