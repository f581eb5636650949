package handler

import (
	"github.com/habitgarden/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db     *gorm.DB
	habits *service.HabitService
	logger *zap.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}

	return &API{
		db:     gdb,
		habits: service.NewHabitService(gdb, log),
		logger: log,
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}
