// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine drives one execution of a job's stage DAG to completion.
// It follows the same scoped-acquisition discipline the original
// implementation expressed as a closure-scoped volume guard: every code
// path through run that has created a volume reaches volume cleanup, and
// every path ends in a terminal status write,
// structured here as ordinary sequential control flow rather than defer,
// since the volume must be released before the terminal status is recorded
// and both happen unconditionally at the end of run.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/musergi/ospreid/internal/logging"
	"github.com/musergi/ospreid/internal/runtime"
	"github.com/musergi/ospreid/internal/store"
)

// Engine starts and drives executions.
type Engine struct {
	store   store.Store
	runtime runtime.Runtime
	log     logging.Logger
}

// New builds an Engine over the given store and container runtime.
func New(s store.Store, r runtime.Runtime, log logging.Logger) *Engine {
	return &Engine{store: s, runtime: r, log: log}
}

// Start validates the job exists, records a new Running execution, and
// launches the run in the background, returning immediately.
func (e *Engine) Start(ctx context.Context, jobID int64) (int64, error) {
	if _, err := e.store.JobSource(ctx, jobID); err != nil {
		return 0, err
	}
	executionID, err := e.store.CreateExecution(ctx, jobID)
	if err != nil {
		return 0, err
	}
	go e.run(executionID, jobID)
	return executionID, nil
}

// run executes every stage of jobID's DAG in order and records the
// terminal outcome against executionID. It runs on a background context:
// process shutdown is the only way to interrupt it, since Osprei does not
// support cancelling an in-flight execution.
func (e *Engine) run(executionID, jobID int64) {
	ctx := context.Background()

	stages, err := e.store.StagesForJob(ctx, jobID)
	if err != nil {
		e.finish(ctx, executionID, store.StatusFailure, "", fmt.Sprintf("loading stages: %v", err))
		return
	}
	if len(stages) == 0 {
		e.finish(ctx, executionID, store.StatusFailure, "", "job has no stages")
		return
	}
	ordered := topoOrder(stages)

	volume, err := e.runtime.CreateVolume(ctx)
	if err != nil {
		e.finish(ctx, executionID, store.StatusFailure, "", fmt.Sprintf("runtime fault: %v", err))
		return
	}

	status := store.StatusSuccess
	var stdout, stderr strings.Builder
	for _, stage := range ordered {
		fmt.Fprintf(&stdout, "--- stage %s ---\n", stage.Definition.Name)
		fmt.Fprintf(&stderr, "--- stage %s ---\n", stage.Definition.Name)

		result, runErr := e.runtime.RunStage(ctx, specFor(stage, volume))
		if runErr != nil {
			stderr.WriteString(runErr.Error())
			status = store.StatusFailure
			break
		}
		stdout.WriteString(result.Stdout)
		stderr.WriteString(result.Stderr)
		if result.ExitCode != 0 {
			fmt.Fprintf(&stderr, "\nstage %s exited %d\n", stage.Definition.Name, result.ExitCode)
			status = store.StatusFailure
			break
		}
	}

	if rmErr := e.runtime.RemoveVolume(ctx, volume); rmErr != nil {
		e.log.Error("volume cleanup failed", logging.NewField("volume", volume), logging.NewField("error", rmErr))
	}

	e.finish(ctx, executionID, status, stdout.String(), stderr.String())
}

func (e *Engine) finish(ctx context.Context, executionID int64, status store.ExecutionStatus, stdout, stderr string) {
	if err := e.store.SetExecutionTerminal(ctx, executionID, status, stdout, stderr); err != nil {
		e.log.Error("recording terminal execution status failed",
			logging.NewField("execution_id", executionID),
			logging.NewField("error", err))
	}
}

func specFor(stage store.Stage, volume string) runtime.StageSpec {
	env := make([]string, len(stage.Definition.Environment))
	for i, v := range stage.Definition.Environment {
		env[i] = v.Name + "=" + v.Value
	}
	return runtime.StageSpec{
		Image:      stage.Definition.Image,
		Env:        env,
		WorkingDir: stage.Definition.WorkingDir,
		Command:    stage.Definition.Command,
		Volume:     volume,
	}
}
