// Package logger provides the structured logger shared by every lottery
// engine component. It is a thin wrapper over logrus that adds a component
// name and a configuration struct understood by the config loader.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOTTERY_LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOTTERY_LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOTTERY_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOTTERY_LOG_FILE_PREFIX"`
}

// Logger is a logrus logger bound to a component name.
type Logger struct {
	*logrus.Logger
	name string
}

// New builds a logger from cfg. Unknown levels fall back to info and an
// unusable file output falls back to stderr.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	base.SetOutput(openOutput(cfg))
	return &Logger{Logger: base, name: "lottery"}
}

// NewDefault returns an info level text logger writing to stderr.
func NewDefault(name string) *Logger {
	l := New(LoggingConfig{Level: "info"})
	if name != "" {
		l.name = name
	}
	return l
}

// Wrap adapts an existing logrus logger, mainly for tests using the
// logrus test hook.
func Wrap(base *logrus.Logger, name string) *Logger {
	return &Logger{Logger: base, name: name}
}

// Name returns the component name the logger was created for.
func (l *Logger) Name() string {
	return l.name
}

// ForComponent returns an entry tagged with the given component.
func (l *Logger) ForComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}

func openOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "lottery"
		}
		path := filepath.Clean(prefix + ".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return os.Stderr
		}
		return f
	default:
		return os.Stderr
	}
}
