// Package journal persists reconciliation runs to SQLite.
//
// A run is one Runner lifetime; each completed tick is stored with its
// propagation events and a content digest of the tick record, so two runs
// over the same scenario can be compared row by row. The journal is an
// observer only: recording failures are logged by the caller and never
// fail a tick.
package journal
