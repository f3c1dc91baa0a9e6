package app

import (
	"os"

	"delivery-dispatch/internal/config"
	"delivery-dispatch/internal/logx"
)

// NewLogger returns the process JSON logger at the configured level.
func NewLogger(cfg *config.Config) logx.Logger {
	return logx.NewJSON(os.Stdout, cfg.LogLevel)
}
