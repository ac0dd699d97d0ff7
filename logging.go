package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// newLogger returns a JSON or text logger writing to output at level, with record
// timestamps rendered in location.
func newLogger(output io.Writer, format string, level string, location *time.Location) (*slog.Logger, error) {
	var slogLevel slog.Level
	if unmarshalError := slogLevel.UnmarshalText([]byte(strings.TrimSpace(level))); unmarshalError != nil {
		return nil, fmt.Errorf("log level %q: %w", level, unmarshalError)
	}
	if location == nil {
		location = time.UTC
	}

	handlerOptions := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, attribute slog.Attr) slog.Attr {
			if len(groups) == 0 && attribute.Key == slog.TimeKey && attribute.Value.Kind() == slog.KindTime {
				attribute.Value = slog.TimeValue(attribute.Value.Time().In(location))
			}
			return attribute
		},
	}

	switch format {
	case "", "json":
		return slog.New(slog.NewJSONHandler(output, handlerOptions)), nil
	case "text":
		return slog.New(slog.NewTextHandler(output, handlerOptions)), nil
	default:
		return nil, fmt.Errorf("log format %q: want json or text", format)
	}
}

// discardLogger returns a logger that drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
