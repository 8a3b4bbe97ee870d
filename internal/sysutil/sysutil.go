// Package sysutil holds process bootstrap helpers for the server binary.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogOptions configures the process-wide logger.
type LogOptions struct {
	Level   string // debug|info|warn|error|fatal|panic; anything else is info
	Pretty  bool   // console writer for local runs
	Service string // stamped on every line when set
	Version string
}

var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(name string) zerolog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// SetupLogger installs log.Logger writing JSON lines to w (stdout when nil).
// Durations are written in milliseconds.
func SetupLogger(w io.Writer, o LogOptions) {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.SetGlobalLevel(ParseLevel(o.Level))
	if o.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	lc := zerolog.New(w).With().Timestamp()
	if o.Service != "" {
		lc = lc.Str("service", o.Service)
	}
	if o.Version != "" {
		lc = lc.Str("version", o.Version)
	}
	log.Logger = lc.Logger()
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
