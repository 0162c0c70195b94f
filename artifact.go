package wasmbackend

import (
	"context"
	"sort"

	"github.com/wippyai/wasm-backend/errors"
)

// Artifact is the output of a build: the encoded units keyed by unit name.
// A unit that failed a capacity check is present with an empty body.
type Artifact struct {
	Units    map[string][]byte
	Order    []string // instantiation order
	Manifest Manifest
}

// Manifest describes the modules of an artifact.
type Manifest struct {
	Entry   string       `json:"entry"` // ID of the entry module
	Modules []ModuleInfo `json:"modules"`
}

// ModuleInfo lists the units of one module.
type ModuleInfo struct {
	ID        string   `json:"id"`
	InitUnit  string   `json:"init_unit"`
	Listener  string   `json:"listener"`
	Units     []string `json:"units"` // init unit first
	TableSize uint32   `json:"table_size"`
	HasMain   bool     `json:"has_main,omitempty"`
}

// NewArtifact returns an empty artifact.
func NewArtifact() *Artifact {
	return &Artifact{Units: make(map[string][]byte)}
}

// Add stores the body of unit name and appends it to the load order.
func (a *Artifact) Add(name string, bin []byte) error {
	if _, ok := a.Units[name]; ok {
		return errors.DuplicateUnit(name)
	}
	a.Units[name] = bin
	a.Order = append(a.Order, name)
	return nil
}

// Unit returns the body of unit name.
func (a *Artifact) Unit(name string) ([]byte, bool) {
	bin, ok := a.Units[name]
	return bin, ok
}

// Empty reports the units with no body, sorted by name.
func (a *Artifact) Empty() []string {
	var out []string
	for name, bin := range a.Units {
		if len(bin) == 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Size returns the total encoded size of all units.
func (a *Artifact) Size() int {
	n := 0
	for _, bin := range a.Units {
		n += len(bin)
	}
	return n
}

// Module returns the manifest entry of module id.
func (m *Manifest) Module(id string) (ModuleInfo, bool) {
	for _, mi := range m.Modules {
		if mi.ID == id {
			return mi, true
		}
	}
	return ModuleInfo{}, false
}

// Verifier checks one encoded unit, typically by compiling it.
type Verifier interface {
	Validate(ctx context.Context, name string, bin []byte) error
}
