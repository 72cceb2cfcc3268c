// Package driving adapts the 3D driving engine to sim.World.
//
// The engine exposes a JSON-RPC session over a WebSocket. Requests carry a
// client-assigned id and get exactly one response; the engine also pushes
// unsolicited notifications (camera frames) on the same socket, so a read
// pump dispatches incoming messages to the waiting caller or the frame
// buffer. The engine has no departed/arrived report; the adapter diffs the
// actor registry across ticks to produce spawned/destroyed lists.
package driving
