package models

import (
	"fmt"
	"sort"
)

// FallbackEntry is one candidate behind a virtual model. The ID is stable and
// never reused, so the route cache can key on it across reorders.
type FallbackEntry struct {
	ID       string `json:"id" yaml:"id"`
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	Priority int    `json:"priority" yaml:"priority"`
}

// VirtualModel is a user-defined alias that resolves at request time to an
// ordered chain of real provider+model pairs.
type VirtualModel struct {
	ID      string          `json:"id" yaml:"id"`
	Name    string          `json:"name" yaml:"name"`
	Enabled bool            `json:"enabled" yaml:"enabled"`
	Entries []FallbackEntry `json:"entries" yaml:"entries"`
}

// SortedEntries returns the entries ordered by ascending priority without
// mutating the receiver.
func (vm *VirtualModel) SortedEntries() []FallbackEntry {
	out := make([]FallbackEntry, len(vm.Entries))
	copy(out, vm.Entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// FallbackSettings is the read-only fallback configuration handed to the
// classifier and resolver. Owned by the settings store outside this core.
type FallbackSettings struct {
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	VirtualModels []VirtualModel `json:"virtual_models" yaml:"virtual_models"`
}

// Find returns the enabled virtual model with exactly the given name.
func (fs *FallbackSettings) Find(name string) (*VirtualModel, bool) {
	if fs == nil || !fs.Enabled {
		return nil, false
	}
	for i := range fs.VirtualModels {
		vm := &fs.VirtualModels[i]
		if vm.Enabled && vm.Name == name {
			return vm, true
		}
	}
	return nil, false
}

// Normalized validates the settings and returns a copy with every chain's
// priorities renumbered to a contiguous 1..N sequence, preserving relative
// order. The receiver is not modified; callers swap the result in atomically.
func (fs FallbackSettings) Normalized() (FallbackSettings, error) {
	out := FallbackSettings{Enabled: fs.Enabled}
	out.VirtualModels = make([]VirtualModel, 0, len(fs.VirtualModels))

	seenNames := make(map[string]struct{}, len(fs.VirtualModels))
	for _, vm := range fs.VirtualModels {
		if vm.Name == "" {
			return FallbackSettings{}, fmt.Errorf("virtual model %q has no name", vm.ID)
		}
		if _, dup := seenNames[vm.Name]; dup {
			return FallbackSettings{}, fmt.Errorf("duplicate virtual model name %q", vm.Name)
		}
		if IsRealModel(vm.Name) {
			return FallbackSettings{}, fmt.Errorf("virtual model name %q collides with a real provider model", vm.Name)
		}
		seenNames[vm.Name] = struct{}{}

		normalized, err := normalizeEntries(vm)
		if err != nil {
			return FallbackSettings{}, err
		}
		vm.Entries = normalized
		out.VirtualModels = append(out.VirtualModels, vm)
	}
	return out, nil
}

func normalizeEntries(vm VirtualModel) ([]FallbackEntry, error) {
	seen := make(map[int]struct{}, len(vm.Entries))
	for _, e := range vm.Entries {
		if _, dup := seen[e.Priority]; dup {
			return nil, fmt.Errorf("virtual model %q: duplicate priority %d", vm.Name, e.Priority)
		}
		seen[e.Priority] = struct{}{}
	}

	sorted := vm.SortedEntries()
	for i := range sorted {
		sorted[i].Priority = i + 1
	}
	return sorted, nil
}

// RemoveEntry returns a copy of the virtual model without the entry carrying
// the given id, priorities renumbered to stay contiguous. Removing an unknown
// id is a no-op.
func (vm VirtualModel) RemoveEntry(entryID string) VirtualModel {
	kept := make([]FallbackEntry, 0, len(vm.Entries))
	for _, e := range vm.SortedEntries() {
		if e.ID != entryID {
			kept = append(kept, e)
		}
	}
	for i := range kept {
		kept[i].Priority = i + 1
	}
	vm.Entries = kept
	return vm
}
