package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"donna-ai/internal/infra/config"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds a *slog.Logger from config. The second return value closes the
// log destination; defer it in main. Unknown levels fall back to info.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	out, closeFn, err := destination(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	level, ok := levels[strings.ToLower(cfg.Level)]
	if !ok {
		level = slog.LevelInfo
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		h = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	return slog.New(h), closeFn, nil
}

// destination resolves the output target. Anything that is not stdout or
// stderr is treated as a file path and opened for append.
func destination(target string) (io.Writer, func() error, error) {
	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, nilClose, nil
	case "", "stderr":
		return os.Stderr, nilClose, nil
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func nilClose() error { return nil }
