// Package cache memoizes pipeline stage outputs in a content-addressable
// object store.
//
// Entries are addressed by Key{Stage, Version, Fingerprint}. Bumping a stage's
// version or changing anything folded into its fingerprint makes old entries
// unreachable; Prune deletes them. A lookup that fails for any reason is a
// miss, so a damaged cache only ever costs recomputation.
package cache
