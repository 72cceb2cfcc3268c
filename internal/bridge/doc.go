// Package bridge keeps the traffic world and the driving world mutually
// consistent on every discrete time step.
//
// The Reconciler owns the two ownership-disjoint mirror mapping tables and
// runs the per-tick protocol: a traffic-drives half-pass, a driving-world
// step, then a driving-drives half-pass, each half propagating spawns,
// destructions, and state exactly once. The Runner wraps the Reconciler in a
// fixed-cadence real-time loop with cooperative cancellation and exactly-once
// teardown.
//
// All mapping state lives in memory and is rebuilt from scratch each run;
// the optional Recorder only observes, it is never read back.
package bridge
