package models

// ServerConfig holds the bridge's listener settings.
type ServerConfig struct {
	ListenPort  int    `json:"listen_port,omitempty" yaml:"listen_port"`
	TargetPort  int    `json:"target_port,omitempty" yaml:"target_port"`
	Environment string `json:"environment,omitempty" yaml:"environment"`
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level"`
}

// RouteCacheConfig holds the stale-while-revalidate cache settings.
type RouteCacheConfig struct {
	Capacity   int `yaml:"capacity" json:"capacity,omitempty"`
	FreshTTLMs int `yaml:"fresh_ttl_ms" json:"fresh_ttl_ms,omitempty"`
}

// TrackerConfig bounds the request-record ring buffer.
type TrackerConfig struct {
	Capacity int `yaml:"capacity" json:"capacity,omitempty"`
}

// BreakerConfig holds provider health-tracking settings. RedisURL is optional;
// without it the breaker state stays in process memory.
type BreakerConfig struct {
	RedisURL         string `yaml:"redis_url" json:"redis_url,omitempty"`
	FailureThreshold int    `yaml:"failure_threshold" json:"failure_threshold,omitempty"`
	SuccessThreshold int    `yaml:"success_threshold" json:"success_threshold,omitempty"`
	OpenForMs        int    `yaml:"open_for_ms" json:"open_for_ms,omitempty"`
}
