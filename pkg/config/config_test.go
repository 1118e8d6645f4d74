package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tu "github.com/vnykmshr/goflux/internal/testutil"
	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	tu.AssertNoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	tu.AssertNoError(t, err)

	tu.AssertEqual(t, cfg.Name, "goflux")
	tu.AssertEqual(t, cfg.Environment, "development")
	tu.AssertEqual(t, cfg.Logging.Level, "info")
	tu.AssertEqual(t, cfg.HTTP.Addr, ":8080")
	tu.AssertEqual(t, cfg.HTTP.SSEInterval, 100*time.Millisecond)
	tu.AssertEqual(t, cfg.Repository.Driver, config.DriverMemory)
	tu.AssertEqual(t, cfg.Metrics.Enabled, true)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yml", `
name: participants
environment: staging
logging:
  level: debug
  format: console
schedulers:
  parallel_workers: 4
  elastic_idle_timeout: 5s
http:
  addr: ":9090"
  shutdown_timeout: 2s
repository:
  driver: sqlite3
  dsn: "file:participants.db"
`)

	cfg, err := config.Load(config.WithConfigFile(path))
	tu.AssertNoError(t, err)

	tu.AssertEqual(t, cfg.Name, "participants")
	tu.AssertEqual(t, cfg.Logging.Format, "console")
	tu.AssertEqual(t, cfg.Schedulers.ParallelWorkers, 4)
	tu.AssertEqual(t, cfg.Schedulers.ElasticIdleTimeout, 5*time.Second)
	tu.AssertEqual(t, cfg.HTTP.ShutdownTimeout, 2*time.Second)
	tu.AssertEqual(t, cfg.Repository.DSN, "file:participants.db")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yml", "http:\n  addr: \":9090\"\n")
	t.Setenv("GOFLUX_HTTP_ADDR", ":7070")
	t.Setenv("GOFLUX_SCHEDULERS_ELASTIC_MAX_WORKERS", "32")

	cfg, err := config.Load(config.WithConfigFile(path))
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, cfg.HTTP.Addr, ":7070")
	tu.AssertEqual(t, cfg.Schedulers.ElasticMaxWorkers, 32)
}

func TestEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "GOFLUX_REPOSITORY_DRIVER=redis\nGOFLUX_REPOSITORY_REDIS_ADDR=localhost:6379\n")
	t.Cleanup(func() {
		os.Unsetenv("GOFLUX_REPOSITORY_DRIVER")
		os.Unsetenv("GOFLUX_REPOSITORY_REDIS_ADDR")
	})

	cfg, err := config.Load(config.WithEnvFile(path))
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, cfg.Repository.Driver, config.DriverRedis)
	tu.AssertEqual(t, cfg.Repository.RedisAddr, "localhost:6379")
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	_, err := config.Load(config.WithEnvFile(filepath.Join(t.TempDir(), ".env")))
	tu.AssertNoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"bad environment", "environment: qa\n", "environment"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"redis without addr", "repository:\n  driver: redis\n", "repository.redis_addr"},
		{"unknown driver", "repository:\n  driver: mongo\n", "repository.driver"},
		{"negative workers", "schedulers:\n  parallel_workers: -1\n", "schedulers.parallel_workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.WithConfigFile(writeFile(t, "config.yml", tt.yaml)))
			var verr *gferrors.ValidationError
			tu.AssertEqual(t, errors.As(err, &verr), true)
			tu.AssertEqual(t, verr.Field, tt.key)
			tu.AssertEqual(t, errors.Is(err, gferrors.ErrInvalidConfiguration), true)
		})
	}

	_, err := config.Load(config.WithConfigFile(filepath.Join(t.TempDir(), "missing.yml")))
	var opErr *gferrors.OperationError
	tu.AssertEqual(t, errors.As(err, &opErr), true)
	tu.AssertEqual(t, strings.Contains(err.Error(), "missing.yml"), true)
}
