package proxy

import (
	"sort"

	"github.com/roach88/mintfactory/internal/ir"
)

// Route is how mints for one module kind are forwarded.
type Route struct {
	Kind   string
	Method string
	Reply  string
}

// Table maps module kinds to routes and module hashes to kinds.
// It is built once from the catalog and never changes.
type Table struct {
	routes map[string]Route
	kinds  map[string]string // module hash -> kind
}

// NewTable builds a table from module specs. Only specs that declare a mint
// shape become routes; every spec contributes its hash.
func NewTable(specs []ir.ModuleSpec) *Table {
	t := &Table{
		routes: make(map[string]Route),
		kinds:  make(map[string]string),
	}
	for _, spec := range specs {
		if spec.Hash != "" {
			t.kinds[spec.Hash] = spec.Kind
		}
		if spec.Mint == nil {
			continue
		}
		reply := spec.Mint.Reply
		if reply == "" {
			reply = ir.ReplyNat
		}
		t.routes[spec.Kind] = Route{Kind: spec.Kind, Method: spec.Mint.Method, Reply: reply}
	}
	return t
}

// Route returns the route for kind.
func (t *Table) Route(kind string) (Route, bool) {
	r, ok := t.routes[kind]
	return r, ok
}

// KindOf returns the kind of the module with the given hash.
func (t *Table) KindOf(hash string) (string, bool) {
	k, ok := t.kinds[hash]
	return k, ok
}

// Kinds returns the dispatchable kinds, sorted.
func (t *Table) Kinds() []string {
	kinds := make([]string, 0, len(t.routes))
	for k := range t.routes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
