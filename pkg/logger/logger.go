package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init 初始化全局日志配置
// JSON 格式 + ISO8601 时间戳，级别通过 LOG_LEVEL 环境变量调整
func Init() {
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	log.SetOutput(os.Stdout)

	level, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
