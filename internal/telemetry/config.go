package telemetry

// Config holds configuration for the tracer
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Enabled selects the SDK provider. When false a noop provider is used.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector host:port. Empty means spans are
	// recorded but not exported.
	Endpoint string

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns a disabled configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "wayfinder",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}
