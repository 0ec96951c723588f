package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLevelFilteringAndFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
	})

	Info("hidden", "k", "v")
	Warn("shown", "period", "1限", "note", "two words")
	Error("failed", errors.New("boom"), "status", 500)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at WARN: %q", out)
	}
	if !strings.Contains(out, `[WARN] shown period=1限 note="two words"`) {
		t.Errorf("unexpected warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] failed err=boom status=500") {
		t.Errorf("unexpected error line: %q", out)
	}
}
