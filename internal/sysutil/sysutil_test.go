package sysutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	level, logger, unit := zerolog.GlobalLevel(), log.Logger, zerolog.DurationFieldUnit
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(level)
		log.Logger = logger
		zerolog.DurationFieldUnit = unit
	})
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"":          zerolog.InfoLevel,
		"warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"panic":     zerolog.PanicLevel,
		"trace":     zerolog.InfoLevel,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	SetupLogger(&buf, LogOptions{Level: "warn", Service: "worldfriends-backend", Version: "1.4.0"})
	log.Info().Msg("dropped")
	log.Warn().Str("user_id", "u1").Dur("latency", 1500*time.Microsecond).Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want one line at warn, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["message"] != "kept" || entry["user_id"] != "u1" || entry["time"] == nil {
		t.Fatalf("entry %v", entry)
	}
	if entry["service"] != "worldfriends-backend" || entry["version"] != "1.4.0" {
		t.Fatalf("process fields missing: %v", entry)
	}
	if entry["latency"] != 1.5 {
		t.Fatalf("latency in ms = %v", entry["latency"])
	}
}

func TestSetupLogger_PrettyWithoutProcessFields(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	SetupLogger(&buf, LogOptions{Pretty: true})
	log.Info().Msg("pretty")

	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "pretty") || strings.Contains(out, "service=") {
		t.Fatalf("console output %q", out)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if FirstNonEmpty() != "" || FirstNonEmpty(" ", "\t") != "" {
		t.Fatalf("blank inputs should yield \"\"")
	}
	if got := FirstNonEmpty("   ", "  v1.4.0  ", "dev"); got != "  v1.4.0  " {
		t.Fatalf("FirstNonEmpty = %q", got)
	}
}
