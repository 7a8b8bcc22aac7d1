package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestWithTurn_AttachesFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	WithTurn("user-1", "sage", "sess-1").Info("turn completed")

	out := buf.String()
	for _, want := range []string{`"user_id":"user-1"`, `"persona_id":"sage"`, `"session_id":"sess-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in log output, got %s", want, out)
		}
	}
}
