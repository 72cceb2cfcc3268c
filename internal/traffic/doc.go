// Package traffic adapts the microscopic traffic engine to sim.World.
//
// The engine speaks a line-delimited JSON command protocol over TCP: one
// request object per line, one response line per request, strictly in
// order. The client is synchronous; the bridge drives it from a single
// goroutine, and a mutex keeps stray callers from interleaving frames.
//
// Any transport failure is terminal for the session and surfaces as an
// engine-unavailable error, which the bridge treats as fatal.
package traffic
