package models

// ProviderConfig holds per-provider upstream settings (unified for YAML config
// and programmatic construction).
type ProviderConfig struct {
	BaseURL        string            `yaml:"base_url" json:"base_url,omitempty"`
	APIKey         string            `yaml:"api_key" json:"api_key,omitempty"`
	AuthHeaderName string            `yaml:"auth_header_name" json:"auth_header_name,omitempty"` // defaults to Authorization
	DisplayName    string            `yaml:"display_name" json:"display_name,omitempty"`
	Enabled        *bool             `yaml:"enabled" json:"enabled,omitempty"` // nil means enabled
	TimeoutMs      int               `yaml:"timeout_ms" json:"timeout_ms,omitempty"`
	MaxConns       int               `yaml:"max_conns" json:"max_conns,omitempty"` // per-provider upstream connection cap
	Headers        map[string]string `yaml:"headers" json:"headers,omitempty"`
}

// IsEnabled treats an absent flag as enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}
