package models

import "time"

// TokenUsage holds the token counts extracted from an upstream response.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RequestRecord is the immutable trace of one completed request, created when
// the request finishes (success or failure) and handed to the tracker.
type RequestRecord struct {
	ID                string            `json:"id"`
	Timestamp         time.Time         `json:"timestamp"`
	Method            string            `json:"method"`
	Endpoint          string            `json:"endpoint"`
	RequestedModel    string            `json:"requested_model"`
	RequestedProvider string            `json:"requested_provider,omitempty"`
	ResolvedModel     string            `json:"resolved_model,omitempty"`
	ResolvedProvider  string            `json:"resolved_provider,omitempty"`
	Usage             TokenUsage        `json:"usage"`
	Duration          time.Duration     `json:"duration_ns"`
	StatusCode        int               `json:"status_code"`
	Error             string            `json:"error,omitempty"`
	FallbackAttempts  []FallbackAttempt `json:"fallback_attempts,omitempty"`
	FromCachedRoute   bool              `json:"from_cached_route"`
}
