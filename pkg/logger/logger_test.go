package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := New(LoggingConfig{Level: tt.level})
			if l.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", l.GetLevel(), tt.want)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	l := New(LoggingConfig{Format: "JSON"})
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter = %T, want *logrus.JSONFormatter", l.Formatter)
	}
}

func TestNew_FileOutput(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "engine")
	l := New(LoggingConfig{Output: "file", FilePrefix: prefix})
	l.Info("hello")

	data, err := os.ReadFile(prefix + ".log")
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file should not be empty")
	}
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("settlement")
	if l.Name() != "settlement" {
		t.Errorf("Name() = %q, want settlement", l.Name())
	}
	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", l.GetLevel())
	}
}

func TestForComponent(t *testing.T) {
	base, hook := test.NewNullLogger()
	l := Wrap(base, "lottery")

	l.ForComponent("engine").Info("started")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["component"] != "engine" {
		t.Errorf("component = %v, want engine", entry.Data["component"])
	}
	if entry.Message != "started" {
		t.Errorf("message = %q, want started", entry.Message)
	}
}
