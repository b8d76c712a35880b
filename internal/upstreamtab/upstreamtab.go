// Package upstreamtab holds the immutable set of upstream descriptors
// configured at startup — name, base URL, static weight, per-call
// timeout — the data the router and forwarder score and dial against.
// Derived mutable state (in-flight, failures, EMA) lives in
// internal/metrics, not here.
package upstreamtab

import (
	"fmt"
	"net/url"
	"time"
)

// Descriptor is one upstream's immutable configuration.
type Descriptor struct {
	Name    string
	BaseURL *url.URL
	Weight  int
	Timeout time.Duration
}

// Table is the immutable, startup-built set of upstream descriptors.
type Table struct {
	byName map[string]*Descriptor
	order  []string
}

// NewTable builds a Table from descs, preserving their declaration order.
func NewTable(descs []*Descriptor) (*Table, error) {
	t := &Table{byName: make(map[string]*Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("upstreamtab: upstream with empty name")
		}
		if _, dup := t.byName[d.Name]; dup {
			return nil, fmt.Errorf("upstreamtab: duplicate upstream name %q", d.Name)
		}
		t.byName[d.Name] = d
		t.order = append(t.order, d.Name)
	}
	return t, nil
}

func (t *Table) Get(name string) (*Descriptor, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// Names returns every upstream name in declaration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
