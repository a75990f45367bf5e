//go:build windows

package tool

import "os/exec"

// configureProcessGroup relies on the default cancellation, which kills
// only the direct child on Windows.
func configureProcessGroup(cmd *exec.Cmd) {}
