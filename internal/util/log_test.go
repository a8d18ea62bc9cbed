package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}

	logger = NewLogger("")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %s", logger.GetLevel())
	}
}

func TestNewLoggerToFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, " WARN ")

	logger.Info().Msg("quiet")
	logger.Warn().Str("symbol", "SUIUSDT").Msg("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "SUIUSDT") || !strings.Contains(out, `"time"`) {
		t.Fatalf("expected timestamped warn line, got %s", out)
	}
}
