// Package artifact maps scene indices to files on disk.
//
// Every scene has three inputs and one output, all named by the zero-padded
// six digit index:
//
//	<predicted>/<index>.npy    predicted depth map
//	<groundtruth>/<index>.npy  ground-truth depth map
//	<calib>/<index>.txt        KITTI calibration record
//	<output>/<index>.npy       corrected depth map (float32)
//
// Outputs are written to a hidden temp file in the output directory and
// renamed into place, so the presence of <index>.npy always means a complete
// result. That presence check is what makes a batch resumable.
package artifact
