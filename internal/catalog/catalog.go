// Package catalog maps vehicle types between the two worlds' vocabularies.
//
// The traffic engine describes vehicles with vtype ids, the driving engine
// with blueprint ids. The catalog is the authoritative pairing between the
// two, declared in CUE so entries are schema-checked at load time rather than
// discovered broken mid-run.
package catalog

import (
	"fmt"

	"github.com/twinsync/twinsync/internal/sim"
)

// Entry pairs one traffic vtype with one driving blueprint.
type Entry struct {
	VType     string           `json:"vtype"`
	Blueprint string           `json:"blueprint"`
	Class     sim.VehicleClass `json:"class"`
}

// Catalog is an immutable, validated set of entries with lookup indexes in
// both directions. Construct via New or Load; zero value is empty.
type Catalog struct {
	entries     []Entry
	byVType     map[string]Entry
	byBlueprint map[string]Entry
}

// New builds a Catalog from entries, validating uniqueness in both
// directions. An id reachable from two entries would make translation
// ambiguous, so duplicates are rejected outright.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries:     make([]Entry, len(entries)),
		byVType:     make(map[string]Entry, len(entries)),
		byBlueprint: make(map[string]Entry, len(entries)),
	}
	copy(c.entries, entries)

	for _, e := range entries {
		if e.VType == "" || e.Blueprint == "" {
			return nil, fmt.Errorf("catalog entry missing vtype or blueprint: %+v", e)
		}
		if _, dup := c.byVType[e.VType]; dup {
			return nil, fmt.Errorf("duplicate vtype %q", e.VType)
		}
		if _, dup := c.byBlueprint[e.Blueprint]; dup {
			return nil, fmt.Errorf("duplicate blueprint %q", e.Blueprint)
		}
		c.byVType[e.VType] = e
		c.byBlueprint[e.Blueprint] = e
	}

	return c, nil
}

// ByVType returns the entry for a traffic vtype id.
func (c *Catalog) ByVType(vtype string) (Entry, bool) {
	e, ok := c.byVType[vtype]
	return e, ok
}

// ByBlueprint returns the entry for a driving blueprint id.
func (c *Catalog) ByBlueprint(blueprint string) (Entry, bool) {
	e, ok := c.byBlueprint[blueprint]
	return e, ok
}

// Entries returns the entries in declaration order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }
