// Package catalog manages the action catalog: the registry of callable
// operations that workflow action nodes reference by name. Entries are
// seeded from an embedded catalogue file and served to the validator, the
// synthesis agent and the HTTP API.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when an action id or name does not resolve.
var ErrNotFound = errors.New("action not found")

// Action is one catalog entry. ActionName is the stable identifier nodes
// and the action service agree on; the remaining fields describe how the
// operation is invoked and how it should be presented.
type Action struct {
	ID          string         `json:"id,omitempty"`
	ActionName  string         `json:"action_name"`
	DisplayName string         `json:"display_name"`
	ClassName   string         `json:"class_name"`
	MethodName  string         `json:"method_name"`
	Domain      string         `json:"domain"`
	Endpoint    string         `json:"endpoint"`
	HTTPMethod  string         `json:"http_method"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Returns     map[string]any `json:"returns"`
	Category    string         `json:"category"`
	Tags        []string       `json:"tags"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Filter narrows catalog listings. Search matches action names and
// descriptions case-insensitively; Skip and Limit paginate.
type Filter struct {
	Category string
	Search   string
	Skip     int
	Limit    int
}

// Index is an in-memory lookup of catalog entries keyed by action name.
// It satisfies the validator's view of the catalog.
type Index map[string]*Action

// NewIndex builds an Index from entries. When two entries share a name the
// first one wins, matching the unique constraint the store enforces.
func NewIndex(actions []*Action) Index {
	idx := make(Index, len(actions))
	for _, a := range actions {
		if a == nil || a.ActionName == "" {
			continue
		}
		if _, ok := idx[a.ActionName]; ok {
			continue
		}
		idx[a.ActionName] = a
	}
	return idx
}

// Get returns the entry for name.
func (i Index) Get(name string) (*Action, bool) {
	a, ok := i[name]
	return a, ok
}

// HasActive reports whether name resolves to an active entry.
func (i Index) HasActive(name string) bool {
	a, ok := i[name]
	return ok && a.IsActive
}

// Summary renders the active entries as prompt context for the synthesis
// agent, one "- name: description" line per action in name order.
func (i Index) Summary() string {
	names := make([]string, 0, len(i))
	for name, a := range i {
		if a.IsActive {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, i[name].Description)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
