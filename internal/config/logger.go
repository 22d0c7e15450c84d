package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logg = newLogger("info", false)

// GetLogger возвращает логгер процесса
func GetLogger() *logrus.Logger {
	return logg
}

// SetupLogger перенастраивает логгер по конфигурации (уровень и формат)
func SetupLogger(cfg *Config) *logrus.Logger {
	logg = newLogger(cfg.LogLevel, cfg.IsProduction())
	return logg
}

func newLogger(level string, jsonFormat bool) *logrus.Logger {
	l := logrus.New()
	if jsonFormat {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	l.SetOutput(os.Stdout)
	return l
}

// LogError пишет ошибку с контекстом модуля и функции
func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
