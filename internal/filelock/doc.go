// Package filelock guards a work directory against concurrent runs.
//
// Intermediate files and their validity records are shared by every run
// that uses the same work directory. Two runs writing them at the same
// time could commit a record for a file the other run is rewriting, so a
// run claims the directory before it starts and releases it when done.
//
// # Claims
//
// A claim is a small JSON file, [LockFileName], created exclusively inside
// the directory. It names the owning run, process and host. A claim left
// behind by a process that no longer exists on this host is stale and is
// taken over by the next run.
//
// # Basic Usage
//
//	lock, err := filelock.Acquire(workDir, runID)
//	if errors.Is(err, filelock.ErrAlreadyClaimed) {
//		// another run is using workDir
//	}
//	defer func() { _ = lock.Release() }()
package filelock
