// Package notifier delivers failure notifications to scenario owners.
package notifier

import (
	"context"
	"log/slog"

	"github.com/dukex/relay/pkg/recovery"
)

// Log writes notifications to the structured log. It is the default sink
// until a delivery channel is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("module", "notifier")}
}

func (n *Log) Notify(ctx context.Context, userID, title, message string, severity recovery.Severity) error {
	n.logger.Log(ctx, level(severity), title,
		"user_id", userID,
		"message", message,
		"severity", severity)

	return nil
}

func level(severity recovery.Severity) slog.Level {
	switch severity {
	case recovery.SeverityCritical, recovery.SeverityHigh:
		return slog.LevelError
	case recovery.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
