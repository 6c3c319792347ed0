package observability

// Config конфигурация OpenTelemetry (traces + metrics)
type Config struct {
	// Enabled включает экспорт в OTLP collector; false ставит noop providers
	Enabled bool
	// OTLPEndpoint адрес OTLP gRPC, например "127.0.0.1:4317"
	OTLPEndpoint string
	// SamplingRatio доля семплируемых трасс (0..1)
	SamplingRatio float64
	ServiceName   string
	// DeploymentEnvironment local/docker
	DeploymentEnvironment string
	ServiceVersion        string
}
