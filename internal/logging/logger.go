package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"signoff/internal/config"
)

// New builds a logger from the log section of the config. Relative file
// paths are resolved against the workspace's .signoff directory.
func New(workspace string, cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg == nil {
		return logger, nil
	}
	level := logrus.InfoLevel
	if cfg.Log.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	logger.SetLevel(level)
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if cfg.Log.File != "" {
		logger.SetOutput(rotatingFile(workspace, cfg))
	}
	return logger, nil
}

func rotatingFile(workspace string, cfg *config.Config) io.Writer {
	path := cfg.Log.File
	if !filepath.IsAbs(path) {
		if workspace == "" {
			workspace = "."
		}
		path = filepath.Join(workspace, ".signoff", path)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}
}

// Discard returns a logger that drops everything, for tests and quiet CLI paths.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
