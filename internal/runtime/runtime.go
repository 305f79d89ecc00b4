// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runtime is the capability boundary between the execution engine
// and whatever container engine actually runs a stage. It mirrors the
// teacher's pkg/executil split between "what a command is" and "how it runs":
// here, "what a stage is" (StageSpec) is decoupled from "how it runs"
// (the Runtime interface), so the engine never shells out directly.
package runtime

import "context"

// StageSpec is everything a Runtime needs to run one containerised stage.
type StageSpec struct {
	Image string
	// Env is emitted as NAME=VALUE in this exact order, duplicates and all;
	// it is never deduplicated or reordered into a map.
	Env        []string
	WorkingDir string
	Command    []string
	Volume     string
}

// StageResult is the outcome of one StageSpec run.
type StageResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runtime is the container engine capability the execution engine depends
// on. Volumes scope a job's workspace across its stage DAG; RunStage mounts
// one at WorkspaceDir inside the container.
type Runtime interface {
	// CreateVolume provisions a fresh, empty volume and returns its name.
	CreateVolume(ctx context.Context) (string, error)

	// RemoveVolume destroys a volume previously returned by CreateVolume.
	// Callers must attempt this on every exit path, successful or not.
	RemoveVolume(ctx context.Context, name string) error

	// RunStage runs one stage to completion and returns its result. A
	// non-zero exit code is reported via StageResult.ExitCode, not an
	// error; an error return means the runtime itself faulted (the engine
	// could not reach it, or spawning never happened at all).
	RunStage(ctx context.Context, spec StageSpec) (StageResult, error)
}
