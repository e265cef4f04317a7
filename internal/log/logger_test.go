package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logDebug bool
	}{
		{"debug enables debug", "DEBUG", true},
		{"info suppresses debug", "INFO", false},
		{"invalid falls back to info", "bogus", false},
		{"lowercase accepted", "debug", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := build(&buf, tt.level, "json")
			l.Debug("probe")
			got := buf.Len() > 0
			if got != tt.logDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.logDebug)
			}
		})
	}
}

func TestBuildFormats(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, "INFO", "json")
	l.Info("hello", "service", "github")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "github" {
		t.Errorf("service = %v, want github", rec["service"])
	}

	buf.Reset()
	l = build(&buf, "INFO", "text")
	l.Info("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}
