// Package classifier decides whether a requested model identifier names a
// real provider model or a registered virtual model.
package classifier

import (
	"github.com/zhangshican/quotio-bridge/internal/models"
)

// Kind discriminates a classification result.
type Kind int

const (
	// Direct means the model passes straight through to the upstream target.
	Direct Kind = iota
	// Virtual means the model routes through fallback resolution.
	Virtual
)

// Classification is the result of classifying one model identifier.
type Classification struct {
	Kind    Kind
	Model   string               // the requested identifier, always set
	Family  models.ModelFamily   // family of the requested identifier
	Virtual *models.VirtualModel // set iff Kind == Virtual
}

// Classify looks the model up against the enabled virtual model set. Matching
// is exact and case-sensitive; no partial matching. When the global fallback
// switch is off every model classifies Direct. Pure lookup, no side effects.
func Classify(model string, settings *models.FallbackSettings) Classification {
	c := Classification{
		Kind:   Direct,
		Model:  model,
		Family: models.DetectModelFamily(model),
	}

	if vm, ok := settings.Find(model); ok {
		c.Kind = Virtual
		c.Virtual = vm
	}
	return c
}
