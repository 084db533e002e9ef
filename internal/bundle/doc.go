// Package bundle defines the data that flows through the bundle build pipeline:
//
//	BuildInput -> DependencyGraph -> CommandSet -> BuildResult
//
// together with build settings, compression options and the ordered result
// codes every stage reports. Types here carry no behaviour beyond
// construction helpers and invariant checks; the stages live in the
// dependency, packing and writing packages.
package bundle
