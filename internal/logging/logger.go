package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup initializes the global slog logger with redacted JSON output to stdout.
func Setup() {
	slog.SetDefault(slog.New(NewRedactingHandler(JSONHandler(os.Stdout))))
}

// JSONHandler is the stdout handler shared by Setup and the fan-out logger
// built once the database is available.
func JSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}
