package models

import "time"

// Endpoint is the resolved upstream target for one fallback entry.
type Endpoint struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
}

// RouteCacheEntry pairs an endpoint with its freshness bookkeeping. Keyed by
// fallback entry ID, never by chain position.
type RouteCacheEntry struct {
	Endpoint        Endpoint  `json:"endpoint"`
	LastValidatedAt time.Time `json:"last_validated_at"`
	IsFresh         bool      `json:"is_fresh"`
}
