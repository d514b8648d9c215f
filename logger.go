package peernetic

import (
	"log/slog"
	"os"
)

// InitLogger configures the global slog logger to output structured JSON to
// stderr. Call this once at program startup, before constructing any Host —
// Hosts built with the default Option set pick up slog.Default() at
// construction time.
func InitLogger(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
