// Package plugin assembles the platform registry: which plugin serves each
// platform, and which one takes over when it comes back empty or failed.
package plugin

import (
	"fmt"
	"strings"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

type Entry struct {
	Info    contractx.PlatformInfo
	Binding contractx.Binding
}

// Registry is read-only once built.
type Registry struct {
	infos    []contractx.PlatformInfo
	bindings map[contractx.PlatformID]contractx.Binding
}

var _ contractx.Registry = (*Registry)(nil)

// NewRegistry keeps entries in the given order. A registry without entries is
// valid here; callers that require platforms check Len.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		infos:    make([]contractx.PlatformInfo, 0, len(entries)),
		bindings: make(map[contractx.PlatformID]contractx.Binding, len(entries)),
	}
	for _, e := range entries {
		id := contractx.PlatformID(strings.TrimSpace(string(e.Info.ID)))
		if id == "" {
			return nil, fmt.Errorf("%w: platform id is empty", contractx.ErrValidation)
		}
		if _, dup := r.bindings[id]; dup {
			return nil, fmt.Errorf("%w: platform %q registered twice", contractx.ErrValidation, id)
		}
		if e.Binding.Primary == nil {
			return nil, fmt.Errorf("%w: platform %q has no primary plugin", contractx.ErrValidation, id)
		}
		r.infos = append(r.infos, contractx.PlatformInfo{ID: id, Description: strings.TrimSpace(e.Info.Description)})
		r.bindings[id] = e.Binding
	}
	return r, nil
}

func (r *Registry) Platforms() []contractx.PlatformInfo {
	out := make([]contractx.PlatformInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

func (r *Registry) Lookup(id contractx.PlatformID) (contractx.Binding, bool) {
	b, ok := r.bindings[id]
	return b, ok
}

func (r *Registry) Len() int { return len(r.infos) }
