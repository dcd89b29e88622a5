// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts encoder child processes in their own process group
// so that a timeout or cancellation reaps ffmpeg together with any helpers it
// spawned.
package procgroup

import "os/exec"

// Set configures cmd to start in a new process group.
// Kill and Interrupt only reach the whole group when Set was called before Start.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill forcefully terminates the process group of cmd.
// It returns nil when cmd was never started or has already exited.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return kill(cmd)
}

// Interrupt asks the process group of cmd to stop.
func Interrupt(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return interrupt(cmd)
}
