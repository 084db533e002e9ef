// Package build provides the canonical bundle build pipeline.
//
// DefaultService.Run executes the three stages in order:
//
//	dirty check → save assets → switch target
//	→ resolve dependencies → PostDependency hook
//	→ pack commands        → PostPacking hook
//	→ write bundles        → PostWriting hook
//
// Any stage or hook returning a code below bundle.Success stops the pipeline.
// The temporary workspace and the progress tracker are released before the
// elapsed time is logged, whichever way the run ends. Hooks are passed per
// call; there is no global hook registry.
package build
