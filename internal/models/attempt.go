package models

import "fmt"

// AttemptOutcome is the terminal classification of a single fallback attempt.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailed  AttemptOutcome = "failed"
	OutcomeSkipped AttemptOutcome = "skipped"
)

// ReasonKind discriminates the AttemptReason variant.
type ReasonKind string

const (
	ReasonKindHTTPStatus  ReasonKind = "http_status"
	ReasonKindPattern     ReasonKind = "pattern"
	ReasonKindCachedRoute ReasonKind = "cached_route"
	ReasonKindSkipped     ReasonKind = "skipped"
	ReasonKindUnknown     ReasonKind = "unknown"
)

// AttemptReason explains why an attempt ended the way it did. Tagged variant:
// exactly one of the payload fields is meaningful for a given kind.
type AttemptReason struct {
	Kind        ReasonKind `json:"kind"`
	StatusCode  int        `json:"status_code,omitempty"`
	Description string     `json:"description,omitempty"`
}

func ReasonHTTPStatus(code int) AttemptReason {
	return AttemptReason{Kind: ReasonKindHTTPStatus, StatusCode: code}
}

// ReasonPattern records a failure detected by response-body pattern matching,
// such as the thinking-signature mismatch heuristic.
func ReasonPattern(description string) AttemptReason {
	return AttemptReason{Kind: ReasonKindPattern, Description: description}
}

// ReasonSkipped records a chain slot that was never dispatched, with the
// planner's explanation.
func ReasonSkipped(description string) AttemptReason {
	return AttemptReason{Kind: ReasonKindSkipped, Description: description}
}

func ReasonCachedRoute() AttemptReason {
	return AttemptReason{Kind: ReasonKindCachedRoute}
}

func ReasonUnknown() AttemptReason {
	return AttemptReason{Kind: ReasonKindUnknown}
}

func (r AttemptReason) String() string {
	switch r.Kind {
	case ReasonKindHTTPStatus:
		return fmt.Sprintf("http_status(%d)", r.StatusCode)
	case ReasonKindPattern:
		return fmt.Sprintf("pattern(%s)", r.Description)
	case ReasonKindCachedRoute:
		return "cached_route"
	case ReasonKindSkipped:
		return fmt.Sprintf("skipped(%s)", r.Description)
	default:
		return "unknown"
	}
}

// FallbackAttempt is one entry of a request's attempt trace. Immutable once
// recorded; appended in attempt order.
type FallbackAttempt struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Outcome  AttemptOutcome `json:"outcome"`
	Reason   *AttemptReason `json:"reason,omitempty"`
}
