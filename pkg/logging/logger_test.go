package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func resetLogger(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		Logger.SetLevel(logrus.InfoLevel)
		Logger.SetFormatter(textFormatter())
		Logger.SetOutput(os.Stderr)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"verbose", logrus.PanicLevel},
		{"", logrus.PanicLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in, logrus.PanicLevel); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetLevel_UnknownKeepsCurrent(t *testing.T) {
	resetLogger(t)

	SetLevel("warn")
	SetLevel("loud")
	if Logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("level = %v, want warn", Logger.GetLevel())
	}
}

func TestInit_JSONToFile(t *testing.T) {
	resetLogger(t)

	path := filepath.Join(t.TempDir(), "logs", "attendface.log")
	if err := Init("debug", path, "json"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Component("test").WithField("user_id", 7).Debug("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"component":"test"`, `"user_id":7`, `"msg":"hello"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}
