// Package config loads process configuration for goflux services from a
// YAML file, an optional .env file and GOFLUX_ environment variables, in
// increasing order of precedence.
//
//	cfg, err := config.Load(config.WithConfigFile("config.yml"), config.WithEnvFile(".env"))
//
// Nested keys map to upper-case variables joined by underscores:
// schedulers.parallel_workers is read from GOFLUX_SCHEDULERS_PARALLEL_WORKERS.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/logger"
	"github.com/vnykmshr/goflux/pkg/metrics"
	"github.com/vnykmshr/goflux/pkg/scheduling/scheduler"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "GOFLUX"

// Repository drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite3"
)

// Config is the root configuration of a goflux service.
type Config struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	Logging    logger.Config    `mapstructure:"logging"`
	Schedulers scheduler.Config `mapstructure:"schedulers"`
	Metrics    metrics.Config   `mapstructure:"metrics"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Repository RepositoryConfig `mapstructure:"repository"`
}

// HTTPConfig configures the service listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	SSEInterval     time.Duration `mapstructure:"sse_interval" validate:"gte=0"`
}

// RepositoryConfig selects and configures the participant store.
type RepositoryConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=memory redis sqlite3"`
	RedisAddr string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisKey  string `mapstructure:"redis_key"`
	DSN       string `mapstructure:"dsn" validate:"required_if=Driver sqlite3"`
}

var defaults = map[string]any{
	"name":        "goflux",
	"environment": "development",

	"logging.level":     "info",
	"logging.format":    "json",
	"logging.output":    "stderr",
	"logging.no_color":  false,
	"logging.timestamp": true,

	"schedulers.parallel_workers":     0,
	"schedulers.elastic_max_workers":  0,
	"schedulers.elastic_queue_size":   scheduler.DefaultElasticQueueSize,
	"schedulers.elastic_idle_timeout": scheduler.DefaultElasticIdleTimeout,

	"metrics.enabled":   true,
	"metrics.namespace": metrics.DefaultNamespace,

	"http.addr":             ":8080",
	"http.shutdown_timeout": 10 * time.Second,
	"http.sse_interval":     100 * time.Millisecond,

	"repository.driver":     DriverMemory,
	"repository.redis_addr": "",
	"repository.redis_key":  "",
	"repository.dsn":        "",
}

type loaderConfig struct {
	configFile string
	envFile    string
}

// LoaderOption customizes Load.
type LoaderOption func(*loaderConfig)

// WithConfigFile reads path, which must exist. Its extension selects the
// format.
func WithConfigFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.configFile = path }
}

// WithEnvFile loads variables from path into the process environment if the
// file exists. Variables already set are not overridden.
func WithEnvFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.envFile = path }
}

// Load builds and validates a Config.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc loaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.envFile != "" {
		if _, err := os.Stat(lc.envFile); err == nil {
			if err := godotenv.Load(lc.envFile); err != nil {
				return nil, gferrors.NewOperationError("config", "loadEnv", err).WithContext(lc.envFile)
			}
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if lc.configFile != "" {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, gferrors.NewOperationError("config", "read", err).WithContext(lc.configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, gferrors.NewOperationError("config", "unmarshal", err)
	}
	cfg.Logging.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their configuration key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every section, reporting the first invalid field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		key := keyOf(fe.Namespace())
		return gferrors.NewValidationError("config", key, fe.Value(), "failed "+fe.Tag()).
			WithHint(fmt.Sprintf("check %s or %s_%s", key, EnvPrefix, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))))
	}
	return gferrors.NewOperationError("config", "validate", err)
}

// keyOf turns "Config.http.addr" into "http.addr".
func keyOf(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		rest = namespace
	}
	return strings.ToLower(rest)
}
