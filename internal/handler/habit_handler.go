package handler

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitgarden/internal/db"
	"github.com/habitgarden/internal/service"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	noteSanitizer = bluemonday.UGCPolicy()
)

type habitPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  uint   `json:"category_id"`
	Frequency   string `json:"frequency"`
}

// dashboardItem 在 DecoratedHabit 之上附加页面渲染所需的字段
type dashboardItem struct {
	service.DecoratedHabit
	NoteHTML  template.HTML
	RetryHint string
}

// renderHabitNote 将习惯备注的 Markdown 渲染为净化后的 HTML
func renderHabitNote(markdown string) template.HTML {
	trimmed := strings.TrimSpace(markdown)
	if trimmed == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(trimmed), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(trimmed))
	}
	return template.HTML(noteSanitizer.SanitizeBytes(buf.Bytes()))
}

func retryHint(e service.Eligibility) string {
	if err := e.Err(); err != nil {
		var notEligible *service.NotEligibleError
		if errors.As(err, &notEligible) {
			return notEligible.Hint()
		}
	}
	return ""
}

// ShowDashboard 渲染习惯列表页面，支持搜索与聚合统计
func (a *API) ShowDashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	search := c.Query("search")
	items, stats, err := a.habits.ComposeForOwner(userID, search, time.Now())
	if err != nil {
		c.HTML(http.StatusInternalServerError, "dashboard.html", gin.H{
			"title": "我的花园",
			"error": "获取习惯列表失败",
		})
		return
	}

	viewItems := make([]dashboardItem, 0, len(items))
	for _, item := range items {
		viewItems = append(viewItems, dashboardItem{
			DecoratedHabit: item,
			NoteHTML:       renderHabitNote(item.Description),
			RetryHint:      retryHint(item.Eligibility),
		})
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"title":   "我的花园",
		"habits":  viewItems,
		"stats":   stats,
		"search":  search,
		"message": c.Query("message"),
	})
}

// ShowHabitEdit 渲染创建/编辑习惯页
func (a *API) ShowHabitEdit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	categories, err := a.listCategories()
	if err != nil {
		c.HTML(http.StatusInternalServerError, "habit_edit.html", gin.H{"error": "加载类别失败"})
		return
	}

	data := gin.H{
		"title":      "种下习惯",
		"habit":      db.Habit{Frequency: "daily", CategoryID: 1},
		"categories": categories,
	}

	if idParam := c.Param("id"); idParam != "" {
		if id, err := strconv.ParseUint(idParam, 10, 32); err == nil {
			habit, err := a.habits.Get(uint(id), userID)
			if err == nil {
				data["title"] = "编辑习惯"
				data["habit"] = habit
			} else if errors.Is(err, service.ErrHabitNotFound) {
				data["error"] = "习惯不存在"
			} else {
				data["error"] = "加载习惯失败"
			}
		}
	}

	c.HTML(http.StatusOK, "habit_edit.html", data)
}

// CreateHabitForm 处理新增习惯的表单提交
func (a *API) CreateHabitForm(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	if _, err := a.habits.Create(userID, habitInputFromForm(c)); err != nil {
		redirectDashboard(c, "创建习惯失败")
		return
	}
	redirectDashboard(c, "")
}

// UpdateHabitForm 处理编辑习惯的表单提交
func (a *API) UpdateHabitForm(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		redirectDashboard(c, "无效的习惯ID")
		return
	}

	if _, err := a.habits.Update(id, userID, habitInputFromForm(c)); err != nil {
		if errors.Is(err, service.ErrHabitNotFound) {
			redirectDashboard(c, "习惯不存在")
			return
		}
		redirectDashboard(c, "更新习惯失败")
		return
	}
	redirectDashboard(c, "")
}

// CompleteHabitForm 处理打卡的表单提交。
// 未到窗口属于正常结果，带着等待提示回到列表页，不算系统错误。
func (a *API) CompleteHabitForm(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		redirectDashboard(c, "无效的习惯ID")
		return
	}

	if _, err := a.habits.Complete(id, userID, time.Now()); err != nil {
		redirectDashboard(c, completionMessage(err))
		return
	}
	redirectDashboard(c, "打卡成功")
}

// DeleteHabitForm 处理删除习惯的表单提交
func (a *API) DeleteHabitForm(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		redirectDashboard(c, "无效的习惯ID")
		return
	}

	if err := a.habits.Delete(id, userID); err != nil {
		redirectDashboard(c, "删除习惯失败")
		return
	}
	redirectDashboard(c, "")
}

// ListHabits 返回习惯列表 JSON，附带聚合统计
func (a *API) ListHabits(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "缺少用户标识")
		return
	}

	items, stats, err := a.habits.ComposeForOwner(userID, c.Query("search"), time.Now())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取习惯列表失败")
		return
	}

	payload := make([]gin.H, 0, len(items))
	for _, item := range items {
		payload = append(payload, decoratedToPayload(item))
	}

	c.JSON(http.StatusOK, gin.H{
		"habits": payload,
		"stats": gin.H{
			"total_habits":    stats.TotalHabits,
			"total_streak":    stats.TotalStreak,
			"completion_rate": stats.CompletionRate,
		},
	})
}

// GetHabit 返回单个习惯详情
func (a *API) GetHabit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "缺少用户标识")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	habit, err := a.habits.Get(id, userID)
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "缺少用户标识")
		return
	}

	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	habit, err := a.habits.Create(userID, service.HabitInput{
		Name:        payload.Name,
		Description: payload.Description,
		CategoryID:  payload.CategoryID,
		Frequency:   payload.Frequency,
	})
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// UpdateHabit 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "缺少用户标识")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	var payload habitPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	habit, err := a.habits.Update(id, userID, service.HabitInput{
		Name:        payload.Name,
		Description: payload.Description,
		CategoryID:  payload.CategoryID,
		Frequency:   payload.Frequency,
	})
	if err != nil {
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// DeleteHabit 删除习惯
func (a *API) DeleteHabit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "缺少用户标识")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	if err := a.habits.Delete(id, userID); err != nil {
		respondError(c, http.StatusInternalServerError, "删除习惯失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// CompleteHabit 执行打卡并返回更新后的习惯。
// 未到完成窗口返回 409 与等待提示。
func (a *API) CompleteHabit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "缺少用户标识")
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的习惯ID")
		return
	}

	habit, err := a.habits.Complete(id, userID, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrHabitNotEligible) {
			c.JSON(http.StatusConflict, gin.H{"error": completionMessage(err)})
			return
		}
		handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

func (a *API) listCategories() ([]db.HabitCategory, error) {
	var categories []db.HabitCategory
	if err := a.db.Order("id ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func habitInputFromForm(c *gin.Context) service.HabitInput {
	categoryID, _ := strconv.ParseUint(c.PostForm("category_id"), 10, 32)
	return service.HabitInput{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		CategoryID:  uint(categoryID),
		Frequency:   c.PostForm("frequency"),
	}
}

func habitToPayload(habit db.Habit) gin.H {
	level := service.ClassifyGrowth(habit.Streak)
	item := gin.H{
		"id":           habit.ID,
		"public_id":    habit.PublicID,
		"name":         habit.Name,
		"description":  habit.Description,
		"category_id":  habit.CategoryID,
		"frequency":    service.NormalizeFrequency(habit.Frequency),
		"streak":       habit.Streak,
		"growth_level": level,
		"growth_label": service.GrowthLabel(level),
	}

	if habit.Category.ID != 0 {
		item["category"] = habit.Category.Label
	}
	if habit.LatestCompletion != nil {
		item["latest_completion"] = habit.LatestCompletion.Format(time.RFC3339)
	}

	return item
}

func decoratedToPayload(item service.DecoratedHabit) gin.H {
	payload := habitToPayload(item.Habit)
	payload["category"] = item.CategoryLabel
	payload["growth_level"] = item.GrowthLevelID
	payload["growth_label"] = item.GrowthLabel
	payload["eligible"] = item.Eligibility.Eligible
	if !item.Eligibility.Eligible {
		payload["retry_after"] = item.Eligibility.RetryAfter
		payload["retry_unit"] = item.Eligibility.RetryUnit
	}
	return payload
}

func completionMessage(err error) string {
	var notEligible *service.NotEligibleError
	if errors.As(err, &notEligible) {
		return notEligible.Hint()
	}
	if errors.Is(err, service.ErrHabitNotEligible) {
		return "这个习惯刚刚完成过，稍后再来"
	}
	if errors.Is(err, service.ErrHabitNotFound) {
		return "习惯不存在"
	}
	return "打卡失败"
}

func redirectDashboard(c *gin.Context, message string) {
	target := "/dashboard"
	if message != "" {
		target += "?message=" + url.QueryEscape(message)
	}
	c.Redirect(http.StatusFound, target)
}

func handleHabitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrHabitInvalidInput):
		respondError(c, http.StatusBadRequest, "习惯配置无效")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
