package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

// Close closes an io.Closer and logs the error instead of returning it.
// Meant for deferred closes on response bodies and storage writers where the
// primary error path is already handled. Nil closers are ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}
