// Package harness runs conformance scenarios against the bridge.
//
// A scenario is a YAML file describing a reconciliation config, a scripted
// sequence of world events (spawns, destroys, failure injection, light
// changes), and assertions over the final state. Scenarios execute against
// two in-memory worldtest doubles, so every run is deterministic and the
// per-tick trace can be compared against a golden file.
package harness
