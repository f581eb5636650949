package main

import (
	"github.com/habitgarden/internal/config"
	"github.com/habitgarden/internal/db"
	"github.com/habitgarden/internal/logger"
	"github.com/habitgarden/internal/router"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}

	// 开发环境演示账号（环境变量未配置时跳过）
	if err := db.EnsureUser(cfg.DemoUserName, cfg.DemoUserEmail, cfg.DemoUserPassword); err != nil {
		log.Fatal("failed to ensure demo user", zap.Error(err))
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(cfg, db.DB, log)
	log.Info("server starting", zap.String("addr", cfg.ListenAddr))
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal("failed to run server", zap.Error(err))
	}
}
