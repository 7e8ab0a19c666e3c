package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"revq/internal/logging"
)

func TestNewWritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello", logging.Args(logging.Int64(logging.FieldRequest, 42))...)

	data, err := os.ReadFile(filepath.Join(dir, "revq.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log output in file")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("nothing should happen", logging.Error(nil))
}
