package notify

import (
	"context"
	"log/slog"

	"github.com/lcalzada-xor/meshmon/internal/core/ports"
)

// LogNotifier writes alert transitions to the structured log. It is the
// fallback channel when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, events []ports.AlertEvent) error {
	for _, ev := range events {
		n.logger.InfoContext(ctx, "Alert",
			"id", ev.Alert.ID,
			"scope", ev.Alert.Scope().Key(),
			"level", ev.Alert.Level.String(),
			"status", ev.Alert.Status.String(),
			"message", ev.Message,
		)
	}
	return nil
}

func (n *LogNotifier) Close() error { return nil }

var _ ports.AlertNotifier = (*LogNotifier)(nil)
