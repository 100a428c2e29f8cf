package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestModuleFiltering(t *testing.T) {
	var buf bytes.Buffer
	prev := Root()
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace)))
	defer SetDefault(prev)

	Debug(TaskMonitoring, "hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug output for disabled module: %q", buf.String())
	}

	EnableModules("task, chain")
	defer DisableModule(TaskMonitoring)
	defer DisableModule(ChainMonitoring)

	Debug(TaskMonitoring, "shown", "task", "t-1")
	Info(APIMonitoring, "always")
	out := buf.String()
	if !strings.Contains(out, "shown") || !strings.Contains(out, "task=t-1") {
		t.Errorf("expected debug record, got %q", out)
	}
	if !strings.Contains(out, "module=api") || !strings.Contains(out, "always") {
		t.Errorf("expected info record, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"info": "INFO ", "WARNING": "WARN ", "trace": "TRACE"} {
		lvl, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got := LevelAlignedString(lvl); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
