package goSession

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/goSession/internal/redact"
)

// LogNotifier is a development Notifier. It logs each delivery with the
// address and code redacted and always reports success.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier logs through l, or slog.Default when l is nil.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{logger: l}
}

// SendOTPCode logs the redacted address and expiry. It always reports delivery.
func (n *LogNotifier) SendOTPCode(ctx context.Context, email, code string, expiryMinutes int) bool {
	n.logger.LogAttrs(ctx, slog.LevelInfo, "otp code issued",
		slog.String("email", redact.Email(email)),
		slog.String("code", redact.Code()),
		slog.Int("expiry_minutes", expiryMinutes),
	)
	return true
}
