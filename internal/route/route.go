// Package route holds the immutable, startup-built route table: path
// prefix -> ordered preference list of upstream names, matched by
// longest prefix with ties broken by declaration order.
package route

import "strings"

// Route maps one path prefix to the preference list of upstream names
// before the router's dynamic scoring is applied.
type Route struct {
	Prefix    string
	Upstreams []string
}

// Table is the immutable route table built once at startup.
type Table struct {
	routes []Route
}

func NewTable(routes []Route) *Table {
	cp := make([]Route, len(routes))
	copy(cp, routes)
	return &Table{routes: cp}
}

// Match returns the route whose prefix is the longest match for path.
// Iterating in declaration order and only replacing the current best on
// a strictly longer prefix means the first-declared route wins any tie,
// satisfying the declaration-order tie-break without a separate pass.
func (t *Table) Match(path string) (Route, bool) {
	bestLen := -1
	bestIdx := -1
	for i, r := range t.routes {
		if !strings.HasPrefix(path, r.Prefix) {
			continue
		}
		if len(r.Prefix) > bestLen {
			bestLen = len(r.Prefix)
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Route{}, false
	}
	return t.routes[bestIdx], true
}
