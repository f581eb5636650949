package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/habitgarden/internal/config"
	"github.com/habitgarden/internal/handler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(cfg config.AppConfig, gdb *gorm.DB, log *zap.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("habitgarden_session", store))

	// 加载模板与静态资源
	r.LoadHTMLGlob("web/template/*.html")
	r.Static("/images", "./web/images")

	api := handler.NewAPI(gdb, log)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// 公开页面
	r.GET("/", handler.ShowIndex)
	r.GET("/login", handler.ShowLoginPage)
	r.POST("/login", handler.Login)
	r.GET("/signup", handler.ShowSignupPage)
	r.POST("/signup", handler.Signup)
	r.GET("/logout", handler.Logout)

	// 需要登录的页面
	auth := r.Group("")
	auth.Use(handler.AuthRequired())
	{
		auth.GET("/dashboard", api.ShowDashboard)
		auth.GET("/addhabit", api.ShowHabitEdit)
		auth.POST("/addhabit", api.CreateHabitForm)
		auth.GET("/edithabit/:id", api.ShowHabitEdit)
		auth.POST("/edithabit/:id", api.UpdateHabitForm)
		auth.POST("/habits/:id/complete", api.CompleteHabitForm)
		auth.POST("/habits/:id/delete", api.DeleteHabitForm)
	}

	// JSON API：会话之外兼容 userid 查询参数（未认证，仅限开发调试）
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/habits", api.ListHabits)
		apiGroup.POST("/habits", api.CreateHabit)
		apiGroup.GET("/habits/:id", api.GetHabit)
		apiGroup.PUT("/habits/:id", api.UpdateHabit)
		apiGroup.DELETE("/habits/:id", api.DeleteHabit)
		apiGroup.POST("/habits/:id/complete", api.CompleteHabit)
	}

	return r
}
