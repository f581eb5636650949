package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/habitgarden/internal/db"
	"golang.org/x/crypto/bcrypt"
)

// ShowIndex 渲染首页
func ShowIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title": "HabitGarden",
	})
}

// ShowLoginPage 渲染登录页面
func ShowLoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"title": "登录",
	})
}

// Login 处理用户登录请求
func Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	// 查找用户
	var user db.User
	if err := db.DB.Where("email = ?", email).First(&user).Error; err != nil {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{"title": "登录", "error": "邮箱或密码错误"})
		return
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{"title": "登录", "error": "邮箱或密码错误"})
		return
	}

	// 设置会话
	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		c.HTML(http.StatusInternalServerError, "login.html", gin.H{"title": "登录", "error": "会话保存失败"})
		return
	}

	c.Redirect(http.StatusFound, "/dashboard")
}

// ShowSignupPage 渲染注册页面
func ShowSignupPage(c *gin.Context) {
	c.HTML(http.StatusOK, "signup.html", gin.H{
		"title": "注册",
	})
}

// Signup 处理注册请求：邮箱唯一，密码以 bcrypt 哈希存储
func Signup(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	firstName := strings.TrimSpace(c.PostForm("firstname"))
	lastName := strings.TrimSpace(c.PostForm("lastname"))

	if username == "" || email == "" || password == "" {
		c.HTML(http.StatusBadRequest, "signup.html", gin.H{"title": "注册", "error": "用户名、邮箱和密码均为必填"})
		return
	}

	var count int64
	if err := db.DB.Model(&db.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "signup.html", gin.H{"title": "注册", "error": "注册失败"})
		return
	}
	if count > 0 {
		c.HTML(http.StatusBadRequest, "signup.html", gin.H{"title": "注册", "error": "该邮箱已被注册"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "signup.html", gin.H{"title": "注册", "error": "注册失败"})
		return
	}

	user := db.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		FirstName:    firstName,
		LastName:     lastName,
	}
	if err := db.DB.Create(&user).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "signup.html", gin.H{"title": "注册", "error": "注册失败"})
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	c.Redirect(http.StatusFound, "/dashboard")
}

// Logout 处理用户登出
func Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.Redirect(http.StatusFound, "/")
}

// AuthRequired 是一个简单的认证中间件
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if session.Get("user_id") == nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentUserID 解析本次请求的用户标识。
// 优先使用会话；JSON API 兼容原始实现的明文 userid 查询参数，
// 该参数未经认证，仅适用于开发调试，生产环境必须走会话登录。
func currentUserID(c *gin.Context) (uint, bool) {
	if _, exists := c.Get(sessions.DefaultKey); exists {
		if raw := sessions.Default(c).Get("user_id"); raw != nil {
			if id, ok := raw.(uint); ok {
				return id, true
			}
		}
	}

	if raw := strings.TrimSpace(c.Query("userid")); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			return uint(id), true
		}
	}

	return 0, false
}
