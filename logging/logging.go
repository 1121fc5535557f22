// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gmlewis/volrender/config"
)

// Setup sets the level and output of the standard logger from cfg. When a
// log file is configured the returned closer flushes and closes it.
func Setup(cfg *config.Config) (io.Closer, error) {
	return setup(log.StandardLogger(), cfg, os.Stderr)
}

func setup(logger *log.Logger, cfg *config.Config, stderr io.Writer) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger.SetLevel(level)

	if cfg.Log.File == "" {
		logger.SetOutput(stderr)
		logger.SetFormatter(&log.TextFormatter{})
		return nopCloser{}, nil
	}

	out := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	logger.SetOutput(out)
	logger.SetFormatter(&log.JSONFormatter{})
	return out, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
