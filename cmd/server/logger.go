package main

import (
	"github.com/septivank/ev-telemetry-engine/internal/config"
	"github.com/septivank/ev-telemetry-engine/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
