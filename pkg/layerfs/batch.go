// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

// BatchResult is the per-digest outcome of a batch AddLayers/RemoveLayers
// call.
type BatchResult struct {
	Digest string
	Err    error
}

// AddLayers adds every layer in order, stopping at the first failure and
// reporting every attempted digest's outcome so a caller can distinguish
// "added", "already existed" and "not attempted".
func (fs *LayerFS) AddLayers(layers []*Layer) []BatchResult {
	results := make([]BatchResult, 0, len(layers))
	for _, l := range layers {
		err := fs.AddLayer(l)
		results = append(results, BatchResult{Digest: string(l.Digest), Err: err})
		if err != nil {
			break
		}
	}
	return results
}

// RemoveLayers removes every digest given, continuing past individual
// failures (e.g. LayerInUse) so the caller sees the full picture rather
// than stopping on the first dependency conflict.
func (fs *LayerFS) RemoveLayers(digests []string) []BatchResult {
	results := make([]BatchResult, 0, len(digests))
	for _, d := range digests {
		err := fs.RemoveLayer(d)
		results = append(results, BatchResult{Digest: d, Err: err})
	}
	return results
}
