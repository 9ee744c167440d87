package log

import (
	"context"
	"strings"
	"testing"
)

func TestTestLoggerCapturesFields(t *testing.T) {
	logger, buffer := NewTestLogger(LevelDebug)

	logger.Info("fold construction finished",
		SchemeKey, "nndm",
		FoldsKey, 25,
	)

	out := buffer.String()
	if !strings.Contains(out, "INFO fold construction finished") {
		t.Errorf("missing message in output: %q", out)
	}
	if !strings.Contains(out, "cv.scheme=nndm") {
		t.Errorf("missing scheme attribute in output: %q", out)
	}
	if !strings.Contains(out, "cv.folds=25") {
		t.Errorf("missing folds attribute in output: %q", out)
	}
}

func TestTestLoggerLevelFiltering(t *testing.T) {
	logger, buffer := NewTestLogger(LevelWarn)

	logger.Debug("not captured")
	logger.Info("not captured either")
	logger.Warn("captured")

	out := buffer.String()
	if strings.Contains(out, "not captured") {
		t.Errorf("suppressed levels leaked into output: %q", out)
	}
	if !strings.Contains(out, "WARN captured") {
		t.Errorf("warn message missing from output: %q", out)
	}

	if logger.Enabled(context.Background(), LevelInfo) {
		t.Error("Enabled(LevelInfo) = true for warn-level logger")
	}
	if !logger.Enabled(context.Background(), LevelError) {
		t.Error("Enabled(LevelError) = false for warn-level logger")
	}
}

func TestTestLoggerWith(t *testing.T) {
	logger, buffer := NewTestLogger(LevelInfo)

	contextual := logger.With(ComponentKey, "aoa")
	contextual.Info("threshold derived", ThresholdKey, 0.55)

	out := buffer.String()
	if !strings.Contains(out, "component=aoa") {
		t.Errorf("pre-populated field missing from output: %q", out)
	}
	if !strings.Contains(out, "di.threshold=0.55") {
		t.Errorf("call-site field missing from output: %q", out)
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}
