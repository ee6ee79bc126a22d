// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Interaction actions emitted outside the fetch pipeline.
const (
	ActionHTTPRequest = "http_request"
	ActionStartup     = "startup"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// Interaction logs one tool interaction: what was asked and what came back.
// Every request, fallback and failure in the service goes through here so the
// log can be replayed as a JSON-lines audit trail.
func Interaction(logger *zap.Logger, action string, input, output any) {
	if logger == nil {
		return
	}
	logger.Info("interaction",
		zap.String("action", action),
		zap.Any("input", input),
		zap.Any("output", output),
	)
}
