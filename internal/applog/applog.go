// Package applog is the structured logging facade (spec's Out-of-scope
// "logging sink", implemented per SPEC_FULL.md's AMBIENT STACK): a
// zerolog.Logger threaded through components the way girc.Client threads
// its debug *log.Logger, but with structured fields instead of Printf lines.
package applog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Init builds the base logger: JSON to logPath/gateway.log when logPath is
// non-empty, otherwise stdout (human-readable console format when pretty
// is true, JSON when it is false).
func Init(logPath string, pretty bool) (zerolog.Logger, error) {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	if logPath != "" {
		if err := os.MkdirAll(logPath, 0o755); err != nil {
			return zerolog.Logger{}, err
		}
		f, err := os.OpenFile(logPath+"/gateway.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		out = f
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger, nil
}

// For returns a child logger scoped to component, the facade's
// per-concern narrowing (spec: one entry per userId/server where relevant).
func For(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// ForUser narrows further to a specific user, used by the per-user
// orchestrator (C10) and its IRC clients.
func ForUser(base zerolog.Logger, userID string) zerolog.Logger {
	return base.With().Str("userId", userID).Logger()
}

// ForServer narrows to a specific IRC server within a user's context.
func ForServer(base zerolog.Logger, server string) zerolog.Logger {
	return base.With().Str("server", server).Logger()
}
