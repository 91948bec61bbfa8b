package display

import (
	"bytes"
	"strings"
	"testing"
)

func TestTerminalPanel(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	if err := term.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := term.DrawRegion(sampleLayout()); err != nil {
		t.Fatalf("DrawRegion() error = %v", err)
	}
	if err := term.WaitUntilReady(0); err != nil {
		t.Fatalf("WaitUntilReady() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, clearScreen) {
		t.Errorf("output does not start with clear sequence")
	}
	for _, want := range []string{"CHAMONIX", "prarion", "15.1 km/h", "no data", "UPD 22:15"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderTextError(t *testing.T) {
	out := RenderText(Layout{Region: "SOLENT", Error: &ErrorScreen{Title: "NO WEATHER DATA", Detail: "timeout"}})
	if !strings.Contains(out, "NO WEATHER DATA") {
		t.Fatalf("output missing error title: %q", out)
	}
}
