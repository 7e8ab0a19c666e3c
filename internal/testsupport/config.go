// Package testsupport provides shared helpers for tests: temp-directory
// configs and pre-opened stores with cleanup registered.
package testsupport

import (
	"path/filepath"
	"testing"

	"revq/internal/config"
)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(base, "reviews.db")
	cfg.Logging.Dir = filepath.Join(base, "logs")
	cfg.ReviewServer.URL = "https://reviews.test"
	cfg.ReviewServer.APIToken = "test-token"
	cfg.LLM.APIKey = "test-key"
	return &cfg
}
