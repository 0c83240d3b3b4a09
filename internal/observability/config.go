package observability

// Config groups the observability toggles. Both subsystems default to off;
// the engine behaves identically either way.
type Config struct {
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// DefaultConfig returns the default observability configuration.
func DefaultConfig() Config {
	return Config{
		Metrics: MetricsConfig{Enabled: false},
		Tracing: TracingConfig{
			Enabled:        false,
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "loom",
			ServiceVersion: "1.0.0",
		},
	}
}
