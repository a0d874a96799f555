// Package corrector defines the boundary to the depth-correction routine.
//
// The routine itself (graph construction over pixel neighborhoods, KNN
// search, CG/GMRES sparse solve) lives outside this module. The batch layer
// only sees [Corrector]: inputs and options in, a corrected depth map or an
// error out. Three implementations are provided:
//
//   - [Exec] runs an external correction program per scene and captures its
//     stderr for diagnostics.
//   - [Identity] returns the predicted map unchanged, for smoke runs.
//   - [Func] adapts a plain function, mainly for tests.
package corrector
