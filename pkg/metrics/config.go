package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every goflux metric name.
const DefaultNamespace = "goflux"

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer `mapstructure:"-"`

	// Namespace overrides the default "goflux" namespace for metrics.
	Namespace string `mapstructure:"namespace"`

	// Labels are constant labels added to all metrics.
	Labels prometheus.Labels `mapstructure:"labels"`
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
	}
}
