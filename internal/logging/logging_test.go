package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestComponentLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLoggerTo(&buf, Config{Level: "debug"}), "feed")
	logger.Info().Str("feed", "gold:sjc").Msg("snapshot persisted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if entry["component"] != "feed" || entry["feed"] != "gold:sjc" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected info level, got %v", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "warn"})
	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	buf.Reset()
	logger = NewLoggerTo(&buf, Config{Level: "nonsense"})
	logger.Info().Msg("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unknown level should fall back to info")
	}
}
