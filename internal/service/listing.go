package service

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/habitgarden/internal/db"
)

// DecoratedHabit 是列表展示用的习惯视图
// GrowthLevelID/GrowthLabel 为按连胜推导出的当前值，与持久化值漂移时以推导值为准
type DecoratedHabit struct {
	db.Habit
	CategoryLabel string
	GrowthLabel   string
	Eligibility   Eligibility
}

// ListStats 汇总列表的聚合数据
// CompletionRate 沿用历史口径：round(totalStreak / totalHabits / 30 * 100)，
// 即相对 30 次连胜目标的百分比，并非严格意义上的完成率
type ListStats struct {
	TotalHabits    int
	TotalStreak    int
	CompletionRate int
}

// GrowthCorrection 描述一条待写回的成长阶段修正
type GrowthCorrection struct {
	HabitID uint
	Level   int
}

// Compose 将原始习惯行组装为可展示的列表：
// 先按搜索词过滤，再为每项附加打卡资格与推导后的成长阶段，
// 同时收集持久化值漂移的修正项交由调用方异步写回。
// 纯内存计算，结果按 ID 倒序（新建在前）。
func Compose(habits []db.Habit, search string, now time.Time) ([]DecoratedHabit, ListStats, []GrowthCorrection) {
	items := make([]DecoratedHabit, 0, len(habits))
	var corrections []GrowthCorrection

	for _, habit := range habits {
		if !MatchesSearch(habit, search) {
			continue
		}

		level, drifted := ReconcileGrowth(habit)
		if drifted {
			corrections = append(corrections, GrowthCorrection{HabitID: habit.ID, Level: level})
		}

		decorated := DecoratedHabit{
			Habit:         habit,
			CategoryLabel: habit.Category.Label,
			GrowthLabel:   GrowthLabel(level),
			Eligibility:   CheckEligibility(habit, now),
		}
		decorated.GrowthLevelID = level
		decorated.Frequency = NormalizeFrequency(habit.Frequency)
		items = append(items, decorated)
	}

	slices.SortFunc(items, func(a, b DecoratedHabit) int {
		return cmp.Compare(b.ID, a.ID)
	})

	return items, composeStats(items), corrections
}

// MatchesSearch 判断习惯是否命中搜索词：对名称、类别、频率、成长阶段
// 四个字段做大小写不敏感的子串匹配，任一命中即保留。空搜索词命中全部。
func MatchesSearch(habit db.Habit, search string) bool {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return true
	}

	fields := []string{
		habit.Name,
		habit.Category.Label,
		NormalizeFrequency(habit.Frequency),
		GrowthLabel(ClassifyGrowth(habit.Streak)),
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func composeStats(items []DecoratedHabit) ListStats {
	stats := ListStats{TotalHabits: len(items)}
	for _, item := range items {
		stats.TotalStreak += item.Streak
	}

	if stats.TotalHabits > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.TotalStreak) / float64(stats.TotalHabits) / 30 * 100))
	}

	return stats
}
