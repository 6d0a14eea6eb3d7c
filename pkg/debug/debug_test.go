package debug

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "census", map[string]bool{"census": true}},
		{"multiple", "census,index", map[string]bool{"census": true, "index": true}},
		{"with spaces", " census , embedding ", map[string]bool{"census": true, "embedding": true}},
		{"uppercase normalized", "CENSUS,Tools", map[string]bool{"census": true, "tools": true}},
		{"empty segments", "census,,auth", map[string]bool{"census": true, "auth": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("len(got) = %d, want %d", len(got), len(tt.want))
			}
			for k := range tt.want {
				if !got[k] {
					t.Errorf("category %q missing", k)
				}
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("census,index")

	if !Enabled("census") || !Enabled("index") {
		t.Error("census and index should be enabled")
	}
	if Enabled("auth") {
		t.Error("auth should not be enabled")
	}

	categories = parseCategories("all")
	if !Enabled("anything") {
		t.Error("all should enable every category")
	}
}

func TestCategoriesSorted(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("tools,census,index")
	got := strings.Join(Categories(), ",")
	if got != "census,index,tools" {
		t.Errorf("Categories() = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestInitWriter_EnvWins(t *testing.T) {
	orig := categories
	origLogger := slog.Default()
	defer func() {
		categories = orig
		slog.SetDefault(origLogger)
	}()

	t.Setenv("MCP_CENSUS_DEBUG", "embedding")
	t.Setenv("MCP_CENSUS_LOG_LEVEL", "DEBUG")

	var buf bytes.Buffer
	InitWriter(&buf, "census", "ERROR")

	if Enabled("census") {
		t.Error("config categories should be overridden by env")
	}
	Log("embedding", "request sent", "model", "all-minilm")
	if !strings.Contains(buf.String(), "request sent") || !strings.Contains(buf.String(), "debug=embedding") {
		t.Errorf("expected debug line, got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("this is a long string", 10); got != "this is a ..." {
		t.Errorf("Truncate long = %q", got)
	}
}

func TestTrace(t *testing.T) {
	orig := categories
	origLogger := slog.Default()
	defer func() {
		categories = orig
		slog.SetDefault(origLogger)
	}()
	t.Setenv("MCP_CENSUS_DEBUG", "")
	t.Setenv("MCP_CENSUS_LOG_LEVEL", "")

	var buf bytes.Buffer
	InitWriter(&buf, "census", "DEBUG")
	if TraceIsEnabled("census") {
		t.Error("TRACE should be off at DEBUG level")
	}
	Trace("census", "body", "len", 3)
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}

	InitWriter(&buf, "census", "TRACE")
	if !TraceIsEnabled("census") {
		t.Error("TRACE should be on for census")
	}
	if TraceIsEnabled("index") {
		t.Error("TRACE should stay off for a disabled category")
	}
	Trace("census", "body", "len", 3)
	if !strings.Contains(buf.String(), "level=DEBUG-4") || !strings.Contains(buf.String(), "debug=census") {
		t.Errorf("expected trace line, got %q", buf.String())
	}
}
