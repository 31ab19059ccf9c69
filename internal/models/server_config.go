package models

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
}

// RedisConfig holds the shared Redis connection used by breakers and the cache
type RedisConfig struct {
	URL string `json:"url,omitzero" yaml:"url"`
}

// GatewayConfig holds routing behavior that is not provider specific
type GatewayConfig struct {
	HistoryLimit     int `json:"history_limit,omitzero" yaml:"history_limit,omitempty"`
	StreamBufferSize int `json:"stream_buffer_size,omitzero" yaml:"stream_buffer_size,omitempty"`
}
