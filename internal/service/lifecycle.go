package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/habitgarden/internal/db"
)

// ErrHabitNotEligible 在完成窗口尚未到期时返回，属于预期内的正常结果
var ErrHabitNotEligible = errors.New("habit not eligible for completion")

// 各频率对应的最小完成间隔
const (
	dailyWindow   = 24 * time.Hour
	weeklyWindow  = 168 * time.Hour
	monthlyWindow = 720 * time.Hour
)

// NotEligibleError 携带距离下次可完成的等待提示
type NotEligibleError struct {
	RetryAfter int    // 剩余数量，按 RetryUnit 计
	RetryUnit  string // "hour" 或 "day"
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("habit not eligible, retry after %d %s(s)", e.RetryAfter, e.RetryUnit)
}

func (e *NotEligibleError) Unwrap() error {
	return ErrHabitNotEligible
}

// Hint 返回面向用户的等待提示
func (e *NotEligibleError) Hint() string {
	unit := "小时"
	if e.RetryUnit == "day" {
		unit = "天"
	}
	return fmt.Sprintf("还需等待 %d %s才能再次打卡", e.RetryAfter, unit)
}

// Eligibility 描述某一时刻能否完成习惯
// Eligible 为 false 时，RetryAfter/RetryUnit 给出等待时长：
// daily 以小时计，weekly/monthly 以天计（均向上取整）
type Eligibility struct {
	Eligible   bool
	RetryAfter int
	RetryUnit  string
}

// Err 将不可完成的状态转换为 NotEligibleError，已可完成时返回 nil
func (e Eligibility) Err() error {
	if e.Eligible {
		return nil
	}
	return &NotEligibleError{RetryAfter: e.RetryAfter, RetryUnit: e.RetryUnit}
}

// NormalizeFrequency 将频率统一为 daily/weekly/monthly，未识别的值按 daily 处理。
// 这是刻意的宽松策略：历史数据里存在手填的频率值，不应让读取路径报错。
func NormalizeFrequency(frequency string) string {
	switch strings.ToLower(strings.TrimSpace(frequency)) {
	case "weekly":
		return "weekly"
	case "monthly":
		return "monthly"
	default:
		return "daily"
	}
}

func frequencyWindow(frequency string) time.Duration {
	switch NormalizeFrequency(frequency) {
	case "weekly":
		return weeklyWindow
	case "monthly":
		return monthlyWindow
	default:
		return dailyWindow
	}
}

// CheckEligibility 判断 now 时刻该习惯是否可以完成。
// 纯计算，不产生副作用，完成动作与列表展示共用同一套规则。
// 从未完成过的习惯总是可完成；否则要求距上次完成至少一个频率窗口
// （daily 24h、weekly 168h、monthly 720h，边界按 >= 判定）。
func CheckEligibility(habit db.Habit, now time.Time) Eligibility {
	if habit.LatestCompletion == nil {
		return Eligibility{Eligible: true}
	}

	window := frequencyWindow(habit.Frequency)
	elapsed := now.Sub(*habit.LatestCompletion)
	if elapsed >= window {
		return Eligibility{Eligible: true}
	}

	remainingHours := window.Hours() - elapsed.Hours()
	if window == dailyWindow {
		return Eligibility{
			RetryAfter: int(math.Ceil(remainingHours)),
			RetryUnit:  "hour",
		}
	}

	return Eligibility{
		RetryAfter: int(math.Ceil(remainingHours / 24)),
		RetryUnit:  "day",
	}
}

// nextCompletionState 计算一次成功完成后的习惯状态：
// 连胜 +1，成长阶段随之重新推导，完成时间刷新为 now。
// 刷新后的完成时间立刻关闭新的窗口，习惯回到等待状态。
func nextCompletionState(habit db.Habit, now time.Time) db.Habit {
	habit.Streak++
	habit.GrowthLevelID = ClassifyGrowth(habit.Streak)
	habit.LatestCompletion = &now
	return habit
}

// ReconcileGrowth 返回按当前连胜推导出的成长阶段以及持久化值是否需要修正。
// 展示层永远使用推导值；修正写回属于自愈动作，异步进行，绝不阻塞读取。
func ReconcileGrowth(habit db.Habit) (level int, drifted bool) {
	level = ClassifyGrowth(habit.Streak)
	return level, level != habit.GrowthLevelID
}
