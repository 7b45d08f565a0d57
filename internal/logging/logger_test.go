package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"signoff/internal/config"
)

func TestNewWritesJSONToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "debug"
	cfg.Log.File = "signoff.log"
	logger, err := New(dir, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("unexpected level: %s", logger.GetLevel())
	}
	logger.WithField("project_id", "p1").Info("hello")
	data, err := os.ReadFile(filepath.Join(dir, ".signoff", "signoff.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"project_id":"p1"`) {
		t.Fatalf("unexpected log output: %s", data)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "loud"
	if _, err := New(t.TempDir(), cfg); err == nil {
		t.Fatalf("expected error")
	}
}
