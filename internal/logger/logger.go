package logger

import "go.uber.org/zap"

// NewLogger 构造生产配置的结构化日志器，构造失败时退化为 Nop。
func NewLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
