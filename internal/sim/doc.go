// Package sim defines the vocabulary shared by both simulated worlds:
// actor identity, poses, vehicle descriptors, light state, traffic-light
// phases, and the World capability interface every engine adapter implements.
//
// The package is deliberately free of engine-specific wire types. The traffic
// and driving adapters translate their native protocols into these types; the
// bridge only ever sees this surface.
package sim
