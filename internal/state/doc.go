// Package state models the telemetry snapshots published by the simulator.
//
// A [Document] is one complete snapshot: a tree of named [Value]s where each
// leaf is a number, bool, string, list or null. Documents are replaced
// wholesale on every update and are never mutated in place once published.
//
//   - [KeyPath]: address of one scalar inside a Document
//   - [ObservationSpec]: ordered KeyPaths defining an extracted [Vector]
//   - [Vector]: numeric observation handed to the control loop
//
// # Missing Keys
//
// Extraction is forgiving. A path that does not resolve, or that resolves to
// a non-numeric leaf, yields 0. A zero-length KeyPath is the derived-slot
// sentinel: its slot is left at 0 for the caller to fill in.
//
//	spec := state.Spec(nil, state.Path("true_airspeed"), state.Path("targetValues", "requestedClimbRate"))
//	obs := spec.Project(doc) // obs[0] == 0, filled by the projector
package state
