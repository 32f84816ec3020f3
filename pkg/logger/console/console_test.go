package console

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{"info level hides debug", false, false},
		{"debug level shows debug", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewConsoleLogger(ConsoleLoggerParams{Debug: tt.debug, Prefix: "soapkg", Output: &buf})

			l.Debug("[Graph] debug line", "document", "d1")
			l.Info("[Graph] info line", "entities", 3)

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Fatalf("debug line present = %v, want %v\n%s", got, tt.wantDebug, out)
			}
			if !strings.Contains(out, "info line") || !strings.Contains(out, "entities=3") {
				t.Fatalf("missing info line or its fields:\n%s", out)
			}
			if !strings.Contains(out, "soapkg") {
				t.Fatalf("missing prefix:\n%s", out)
			}
		})
	}
}
