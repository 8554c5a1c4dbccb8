// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package archive

import "sync"

// DefaultExtractWorkers is the fan-out bound from spec §5: "extraction
// fan-out is bounded by a configurable worker count (default 4)".
const DefaultExtractWorkers = 4

// ExtractJob is one archive to extract as part of a bounded-concurrency
// batch (e.g. materializing several LayerFS layers at once).
type ExtractJob struct {
	Src, Dst string
}

// ExtractAllResult is the per-job outcome of ExtractAll.
type ExtractAllResult struct {
	Job    ExtractJob
	Report *ExtractReport
	Err    error
}

// ExtractAll runs jobs with at most `workers` extractions in flight at
// once. Workers share no mutable state other than the results slice, in
// which each writes only its own index. If workers <= 0,
// DefaultExtractWorkers is used.
func ExtractAll(jobs []ExtractJob, workers int) []ExtractAllResult {
	if workers <= 0 {
		workers = DefaultExtractWorkers
	}

	results := make([]ExtractAllResult, len(jobs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job ExtractJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			report, err := ExtractArchive(job.Src, job.Dst)
			results[i] = ExtractAllResult{Job: job, Report: report, Err: err}
		}(i, job)
	}

	wg.Wait()
	return results
}
