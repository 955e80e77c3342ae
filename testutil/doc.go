// Package testutil provides testing utilities for livre.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random number generator plus helpers
// for generating voxel payloads and block identifiers.
//
// # Random Generation
//
//	rng := testutil.NewRNG(seed)
//	payload := make([]byte, info.BlockBytes())
//	rng.FillBytes(payload)
//	id := rng.NodeID(tree)
package testutil
