package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zhangshican/quotio-bridge/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTrackerCapacity = 50
	defaultCacheCapacity   = 256
	defaultFreshTTLMs      = 30_000
	defaultTimeoutMs       = 60_000
	defaultMaxConns        = 16
)

// Config represents the complete bridge configuration
type Config struct {
	Server           models.ServerConfig              `yaml:"server"`
	Providers        map[string]models.ProviderConfig `yaml:"providers"`
	Fallback         models.FallbackSettings          `yaml:"fallback"`
	RouteCache       models.RouteCacheConfig          `yaml:"route_cache"`
	Tracker          models.TrackerConfig             `yaml:"tracker"`
	Breaker          models.BreakerConfig             `yaml:"breaker"`
	SanitizePatterns []string                         `yaml:"sanitize_patterns,omitempty"`
}

// LoadFromFile loads configuration from a YAML file with environment variable
// substitution, then normalizes and validates it.
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	// Normalize provider map keys to lowercase for case-insensitive lookups
	if config.Providers != nil {
		normalized := make(map[string]models.ProviderConfig, len(config.Providers))
		for key, value := range config.Providers {
			normalized[strings.ToLower(key)] = value
		}
		config.Providers = normalized
	}

	// Validate virtual model names and renumber chain priorities up front so
	// the classifier and resolver only ever see normalized settings.
	fallback, err := config.Fallback.Normalized()
	if err != nil {
		return nil, fmt.Errorf("invalid fallback configuration: %w", err)
	}
	config.Fallback = fallback

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of
// precedence (first has highest priority).
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Tracker.Capacity <= 0 {
		c.Tracker.Capacity = defaultTrackerCapacity
	}
	if c.RouteCache.Capacity <= 0 {
		c.RouteCache.Capacity = defaultCacheCapacity
	}
	if c.RouteCache.FreshTTLMs <= 0 {
		c.RouteCache.FreshTTLMs = defaultFreshTTLMs
	}
	for name, p := range c.Providers {
		if p.TimeoutMs <= 0 {
			p.TimeoutMs = defaultTimeoutMs
		}
		if p.MaxConns <= 0 {
			p.MaxConns = defaultMaxConns
		}
		c.Providers[name] = p
	}
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// GetProviderConfig returns the configuration for a specific provider.
func (c *Config) GetProviderConfig(provider string) (models.ProviderConfig, bool) {
	cfg, exists := c.Providers[strings.ToLower(provider)]
	return cfg, exists
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var missing []string

	if c.Server.ListenPort <= 0 {
		missing = append(missing, "server.listen_port")
	}
	if c.Server.TargetPort <= 0 {
		missing = append(missing, "server.target_port")
	}
	for name, p := range c.Providers {
		if p.BaseURL == "" {
			missing = append(missing, fmt.Sprintf("providers.%s.base_url", name))
		}
	}
	// Chain entries referencing unknown providers are deliberately legal:
	// the resolver marks them skipped instead of failing the whole config.

	if len(missing) > 0 {
		return &ValidationError{MissingFields: missing}
	}

	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return "missing required configuration fields: " + strings.Join(e.MissingFields, ", ")
}
