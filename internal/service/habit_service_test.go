package service

import (
	"errors"
	"testing"
	"time"

	"github.com/habitgarden/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupHabitTestDB(t *testing.T) (*HabitService, func()) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}, &db.HabitCategory{}, &db.GrowthLevel{}, &db.Habit{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	if err := db.SeedLookupTables(gdb); err != nil {
		t.Fatalf("failed to seed lookup tables: %v", err)
	}

	db.DB = gdb

	return NewHabitService(gdb, nil), func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func TestHabitServiceCreateAndList(t *testing.T) {
	svc, cleanup := setupHabitTestDB(t)
	defer cleanup()

	habit, err := svc.Create(1, HabitInput{
		Name:       "晨跑",
		CategoryID: 2, // physical
		Frequency:  "daily",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if habit.Streak != 0 || habit.GrowthLevelID != GrowthSeedling || habit.LatestCompletion != nil {
		t.Fatalf("unexpected initial state: streak=%d level=%d", habit.Streak, habit.GrowthLevelID)
	}
	if habit.PublicID == "" {
		t.Fatal("expected habit to have a public id")
	}

	// 其他用户的习惯不可见
	if _, err := svc.Create(2, HabitInput{Name: "读书", CategoryID: 4, Frequency: "weekly"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	habits, err := svc.List(1)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(habits) != 1 {
		t.Fatalf("expected 1 habit for user 1, got %d", len(habits))
	}
	if habits[0].Category.Label != "physical" {
		t.Fatalf("expected category to be preloaded, got %q", habits[0].Category.Label)
	}

	// 未识别频率按 daily 落库，不报错
	lenient, err := svc.Create(1, HabitInput{Name: "浇花", CategoryID: 1, Frequency: "yearly"})
	if err != nil {
		t.Fatalf("Create with unknown frequency returned error: %v", err)
	}
	if lenient.Frequency != "daily" {
		t.Fatalf("expected unknown frequency to normalize to daily, got %q", lenient.Frequency)
	}

	// 空名称与未知类别被拒绝
	if _, err := svc.Create(1, HabitInput{Name: "  ", CategoryID: 1}); !errors.Is(err, ErrHabitInvalidInput) {
		t.Fatalf("expected ErrHabitInvalidInput for blank name, got %v", err)
	}
	if _, err := svc.Create(1, HabitInput{Name: "冥想", CategoryID: 99}); !errors.Is(err, ErrHabitInvalidInput) {
		t.Fatalf("expected ErrHabitInvalidInput for unknown category, got %v", err)
	}
}

func TestHabitServiceGetScopedToOwner(t *testing.T) {
	svc, cleanup := setupHabitTestDB(t)
	defer cleanup()

	habit, err := svc.Create(1, HabitInput{Name: "写日记", CategoryID: 1, Frequency: "daily"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.Get(habit.ID, 2); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound for foreign owner, got %v", err)
	}
}

func TestHabitServiceUpdateKeepsStreakDerivedGrowth(t *testing.T) {
	svc, cleanup := setupHabitTestDB(t)
	defer cleanup()

	habit, err := svc.Create(1, HabitInput{Name: "冥想", CategoryID: 1, Frequency: "daily"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 模拟历史数据：连胜 20 但持久化阶段仍是 seedling
	if err := db.DB.Model(&db.Habit{}).Where("id = ?", habit.ID).
		Updates(map[string]any{"streak": 20, "growth_level_id": GrowthSeedling}).Error; err != nil {
		t.Fatalf("failed to seed drifted habit: %v", err)
	}

	updated, err := svc.Update(habit.ID, 1, HabitInput{Name: "晚间冥想", CategoryID: 3, Frequency: "weekly"})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if updated.Name != "晚间冥想" || updated.Frequency != "weekly" || updated.CategoryID != 3 {
		t.Fatalf("unexpected updated fields: %+v", updated)
	}
	if updated.Streak != 20 {
		t.Fatalf("update must not touch streak, got %d", updated.Streak)
	}
	// 成长阶段由连胜重新推导，而不是沿用持久化值
	if updated.GrowthLevelID != GrowthMature {
		t.Fatalf("expected growth level %d, got %d", GrowthMature, updated.GrowthLevelID)
	}
}

func TestHabitServiceComplete(t *testing.T) {
	svc, cleanup := setupHabitTestDB(t)
	defer cleanup()

	habit, err := svc.Create(1, HabitInput{Name: "晨跑", CategoryID: 2, Frequency: "daily"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	completed, err := svc.Complete(habit.ID, 1, now)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	if completed.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", completed.Streak)
	}
	if completed.GrowthLevelID != ClassifyGrowth(completed.Streak) {
		t.Fatal("growth level must match classify(streak) after completion")
	}

	// 窗口内的第二次打卡是预期内的失败
	_, err = svc.Complete(habit.ID, 1, now.Add(2*time.Hour))
	if !errors.Is(err, ErrHabitNotEligible) {
		t.Fatalf("expected ErrHabitNotEligible, got %v", err)
	}
	var notEligible *NotEligibleError
	if !errors.As(err, &notEligible) {
		t.Fatalf("expected NotEligibleError with hint, got %T", err)
	}

	// 窗口过后恢复
	if _, err := svc.Complete(habit.ID, 1, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("Complete after window returned error: %v", err)
	}

	// 未知用户/习惯
	if _, err := svc.Complete(habit.ID, 2, now.Add(48*time.Hour)); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestHabitServiceCompleteStaleSnapshotLosesRace(t *testing.T) {
	svc, cleanup := setupHabitTestDB(t)
	defer cleanup()

	habit, err := svc.Create(1, HabitInput{Name: "俯卧撑", CategoryID: 2, Frequency: "daily"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 两个请求读到同一个快照
	snapshot, err := svc.Get(habit.ID, 1)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if _, err := svc.completeWithSnapshot(*snapshot, now); err != nil {
		t.Fatalf("first completion should win: %v", err)
	}

	// 条件更新落空，第二个请求被判定为未到窗口，连胜不会双增
	if _, err := svc.completeWithSnapshot(*snapshot, now); !errors.Is(err, ErrHabitNotEligible) {
		t.Fatalf("expected stale snapshot to fail with ErrHabitNotEligible, got %v", err)
	}

	fresh, err := svc.Get(habit.ID, 1)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fresh.Streak != 1 {
		t.Fatalf("expected streak 1 after racing completions, got %d", fresh.Streak)
	}
}

func TestHabitServiceDelete(t *testing.T) {
	svc, cleanup := setupHabitTestDB(t)
	defer cleanup()

	habit, err := svc.Create(1, HabitInput{Name: "拉伸", CategoryID: 2, Frequency: "daily"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 他人删除不影响
	if err := svc.Delete(habit.ID, 2); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(habit.ID, 1); err != nil {
		t.Fatalf("habit should survive a foreign delete: %v", err)
	}

	if err := svc.Delete(habit.ID, 1); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(habit.ID, 1); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound after delete, got %v", err)
	}
}

func TestApplyGrowthCorrections(t *testing.T) {
	svc, cleanup := setupHabitTestDB(t)
	defer cleanup()

	habit, err := svc.Create(1, HabitInput{Name: "背单词", CategoryID: 4, Frequency: "daily"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := db.DB.Model(&db.Habit{}).Where("id = ?", habit.ID).
		Updates(map[string]any{"streak": 20, "growth_level_id": GrowthSeedling}).Error; err != nil {
		t.Fatalf("failed to seed drifted habit: %v", err)
	}

	habits, err := svc.List(1)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	items, _, corrections := Compose(habits, "", now)

	// 读取路径立刻展示推导值
	if items[0].GrowthLevelID != GrowthMature {
		t.Fatalf("expected displayed level %d, got %d", GrowthMature, items[0].GrowthLevelID)
	}
	// 每次漂移恰好产生一条修正
	if len(corrections) != 1 {
		t.Fatalf("expected exactly 1 correction, got %d", len(corrections))
	}

	svc.applyGrowthCorrections(corrections)

	fresh, err := svc.Get(habit.ID, 1)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fresh.GrowthLevelID != GrowthMature {
		t.Fatalf("expected persisted level %d after correction, got %d", GrowthMature, fresh.GrowthLevelID)
	}

	// 修正后的再次组装不再产生修正
	habits, err = svc.List(1)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if _, _, corrections := Compose(habits, "", now); len(corrections) != 0 {
		t.Fatalf("expected no corrections after repair, got %d", len(corrections))
	}
}
