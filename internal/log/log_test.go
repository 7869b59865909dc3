package log

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newBuffered(level logrus.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.log.SetLevel(level)
	logger.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, &buf
}

func TestNew_DefaultLevel(t *testing.T) {
	_ = os.Unsetenv("LOG_LEVEL")
	logger := New()
	if logger.log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected default level Info, got %v", logger.log.GetLevel())
	}
}

func TestNew_CustomLevels(t *testing.T) {
	tests := []struct {
		envValue string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"ERROR", logrus.ErrorLevel},
		{"invalid", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.envValue)

			logger := New()
			if logger.log.GetLevel() != tt.expected {
				t.Errorf("for LOG_LEVEL=%s, expected level %v, got %v", tt.envValue, tt.expected, logger.log.GetLevel())
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.InfoWithFields(logrus.Fields{"feed_id": 2}, "applied")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if line["msg"] != "applied" {
		t.Errorf("msg = %v; want applied", line["msg"])
	}
	if line["feed_id"] != float64(2) {
		t.Errorf("feed_id = %v; want 2", line["feed_id"])
	}
}

func TestSetLevel(t *testing.T) {
	logger := New()

	logger.SetLevel("debug")
	if logger.log.GetLevel() != logrus.DebugLevel {
		t.Errorf("SetLevel(debug) left level %v", logger.log.GetLevel())
	}
	logger.SetLevel("nonsense")
	if logger.log.GetLevel() != logrus.DebugLevel {
		t.Errorf("SetLevel(nonsense) changed level to %v", logger.log.GetLevel())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	if logger.log.GetLevel() != logrus.PanicLevel {
		t.Errorf("Discard level = %v; want panic", logger.log.GetLevel())
	}
}

func TestLevelMethods(t *testing.T) {
	tests := []struct {
		name string
		emit func(*Logger)
		want []string
	}{
		{"trace", func(l *Logger) { l.Trace("t %d", 1) }, []string{"t 1"}},
		{"trace fields", func(l *Logger) { l.TraceWithFields(logrus.Fields{"key": "value"}, "t") }, []string{"key=value"}},
		{"debug", func(l *Logger) { l.Debug("d") }, []string{"level=debug"}},
		{"debug fields", func(l *Logger) { l.DebugWithFields(logrus.Fields{"id": "123"}, "d") }, []string{"id=123"}},
		{"info", func(l *Logger) { l.Info("i") }, []string{"level=info"}},
		{"info fields", func(l *Logger) { l.InfoWithFields(logrus.Fields{"status": "ok"}, "i") }, []string{"status=ok"}},
		{"warn", func(l *Logger) { l.Warn("w") }, []string{"level=warning"}},
		{"warn fields", func(l *Logger) { l.WarnWithFields(logrus.Fields{"code": 6005}, "stale") }, []string{"code=6005", "stale"}},
		{"error", func(l *Logger) { l.Error("e") }, []string{"level=error"}},
		{"error fields", func(l *Logger) { l.ErrorWithFields(logrus.Fields{"code": "500"}, "e") }, []string{"code=500"}},
		{"with field", func(l *Logger) { l.WithField("tx", "abc").Info("m") }, []string{"tx=abc"}},
		{"with fields", func(l *Logger) {
			l.WithFields(logrus.Fields{"tx": "abc", "feed_id": 2}).Info("m")
		}, []string{"tx=abc", "feed_id=2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBuffered(logrus.TraceLevel)
			tt.emit(logger)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("expected %q in output, got: %s", w, buf.String())
				}
			}
		})
	}
}
