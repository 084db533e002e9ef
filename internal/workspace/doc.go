// Package workspace owns the temporary working directory of a build run.
//
// A Scope is acquired before the first stage and released with defer, so the
// directory is removed on success, failure and cancellation alike. Cache
// entries and output files never live inside it.
package workspace
