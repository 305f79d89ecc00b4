// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storetest holds the conformance suite shared by memstore and
// sqlstore, mirroring the original implementation's pattern of generic
// test_job_store/test_execution_store/test_schedule_store helpers exercised
// against every backend.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musergi/ospreid/internal/osprerr"
	"github.com/musergi/ospreid/internal/store"
)

// Run exercises the full Store contract against s.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	t.Run("JobLifecycle", func(t *testing.T) { testJobLifecycle(t, ctx, s) })
	t.Run("CheckoutStageInvariants", func(t *testing.T) { testCheckoutStageInvariants(t, ctx, s) })
	t.Run("StageCreation", func(t *testing.T) { testStageCreation(t, ctx, s) })
	t.Run("ExecutionLifecycle", func(t *testing.T) { testExecutionLifecycle(t, ctx, s) })
	t.Run("ExecutionTerminalIsOneShot", func(t *testing.T) { testExecutionTerminalIsOneShot(t, ctx, s) })
	t.Run("ScheduleLifecycle", func(t *testing.T) { testScheduleLifecycle(t, ctx, s) })
}

func testJobLifecycle(t *testing.T, ctx context.Context, s store.Store) {
	before, err := s.JobIDs(ctx)
	require.NoError(t, err)

	id, err := s.CreateJob(ctx, "https://example.invalid/repo.git")
	require.NoError(t, err)
	assert.Positive(t, id)

	after, err := s.JobIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
	assert.Contains(t, after, id)

	source, err := s.JobSource(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.invalid/repo.git", source)

	status, err := s.JobStatus(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, status, "a never-executed job has a nil status")

	_, err = s.JobSource(ctx, id+1_000_000)
	require.Error(t, err)
	assert.Equal(t, osprerr.KindNotFound, osprerr.KindOf(err))
}

func testCheckoutStageInvariants(t *testing.T, ctx context.Context, s store.Store) {
	id, err := s.CreateJob(ctx, "https://example.invalid/checkout.git")
	require.NoError(t, err)

	stages, err := s.StagesForJob(ctx, id)
	require.NoError(t, err)
	require.Len(t, stages, 1)

	checkout := stages[0]
	assert.Nil(t, checkout.Dependency)
	assert.True(t, checkout.IsCheckout())
	assert.Equal(t, store.CheckoutStageName, checkout.Definition.Name)
	assert.Equal(t, store.CheckoutImage, checkout.Definition.Image)
}

func testStageCreation(t *testing.T, ctx context.Context, s store.Store) {
	jobA, err := s.CreateJob(ctx, "https://example.invalid/a.git")
	require.NoError(t, err)
	jobB, err := s.CreateJob(ctx, "https://example.invalid/b.git")
	require.NoError(t, err)

	stagesA, err := s.StagesForJob(ctx, jobA)
	require.NoError(t, err)
	checkoutA := stagesA[0].ID

	def := store.StageDefinition{
		Name:       "test",
		Image:      "golang:1.24",
		WorkingDir: store.CheckoutDir,
		Command:    []string{"go", "test", "./..."},
		Environment: []store.EnvVar{
			{Name: "CGO_ENABLED", Value: "0"},
		},
	}
	stageID, err := s.CreateStage(ctx, jobA, &checkoutA, def)
	require.NoError(t, err)

	stagesA, err = s.StagesForJob(ctx, jobA)
	require.NoError(t, err)
	require.Len(t, stagesA, 2)
	assert.Equal(t, stagesA[0].ID, checkoutA, "checkout is always stages[0]")
	assert.Equal(t, stageID, stagesA[1].ID)
	require.NotNil(t, stagesA[1].Dependency)
	assert.Equal(t, checkoutA, *stagesA[1].Dependency)
	assert.Equal(t, def, stagesA[1].Definition, "round trip of StageDefinition is identity")

	// Cross-job dependency is rejected.
	_, err = s.CreateStage(ctx, jobB, &checkoutA, def)
	require.Error(t, err)
	assert.Equal(t, osprerr.KindValidation, osprerr.KindOf(err))

	// Dependency must be non-nil for a non-checkout stage.
	_, err = s.CreateStage(ctx, jobA, nil, def)
	require.Error(t, err)
	assert.Equal(t, osprerr.KindValidation, osprerr.KindOf(err))

	// Empty name is rejected.
	_, err = s.CreateStage(ctx, jobA, &checkoutA, store.StageDefinition{Image: "x"})
	require.Error(t, err)
}

func testExecutionLifecycle(t *testing.T, ctx context.Context, s store.Store) {
	jobID, err := s.CreateJob(ctx, "https://example.invalid/exec.git")
	require.NoError(t, err)

	execID, err := s.CreateExecution(ctx, jobID)
	require.NoError(t, err)

	ids, err := s.ExecutionIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, execID)

	status, err := s.ExecutionStatus(ctx, execID)
	require.NoError(t, err)
	assert.Nil(t, status, "freshly created execution is Running")

	dur, err := s.ExecutionDuration(ctx, execID)
	require.NoError(t, err)
	assert.Nil(t, dur)

	require.NoError(t, s.SetExecutionTerminal(ctx, execID, store.StatusSuccess, "out", "err"))

	exec, err := s.Execution(ctx, execID)
	require.NoError(t, err)
	require.NotNil(t, exec.Status)
	assert.Equal(t, store.StatusSuccess, *exec.Status)
	require.NotNil(t, exec.EndTime)
	assert.False(t, exec.EndTime.Before(exec.StartTime), "end_time >= start_time")

	stdout, err := s.ExecutionStdout(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, "out", stdout)

	stderr, err := s.ExecutionStderr(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, "err", stderr)

	jobStatus, err := s.JobStatus(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, jobStatus)
	assert.Equal(t, store.StatusSuccess, *jobStatus)
}

func testExecutionTerminalIsOneShot(t *testing.T, ctx context.Context, s store.Store) {
	jobID, err := s.CreateJob(ctx, "https://example.invalid/oneshot.git")
	require.NoError(t, err)
	execID, err := s.CreateExecution(ctx, jobID)
	require.NoError(t, err)

	require.NoError(t, s.SetExecutionTerminal(ctx, execID, store.StatusFailure, "a", "b"))

	err = s.SetExecutionTerminal(ctx, execID, store.StatusSuccess, "c", "d")
	require.Error(t, err)

	exec, err := s.Execution(ctx, execID)
	require.NoError(t, err)
	require.NotNil(t, exec.Status)
	assert.Equal(t, store.StatusFailure, *exec.Status, "second transition is rejected")
	assert.Equal(t, "a", exec.Stdout)
	assert.Equal(t, "b", exec.Stderr)
}

func testScheduleLifecycle(t *testing.T, ctx context.Context, s store.Store) {
	jobID, err := s.CreateJob(ctx, "https://example.invalid/sched.git")
	require.NoError(t, err)

	id, err := s.CreateDailySchedule(ctx, jobID, 12, 30)
	require.NoError(t, err)
	assert.Positive(t, id)

	schedules, err := s.AllSchedules(ctx)
	require.NoError(t, err)
	var found bool
	for _, sc := range schedules {
		if sc.ID == id {
			found = true
			assert.Equal(t, jobID, sc.JobID)
			assert.Equal(t, 12, sc.Hour)
			assert.Equal(t, 30, sc.Minute)
		}
	}
	assert.True(t, found)

	_, err = s.CreateDailySchedule(ctx, jobID, 24, 0)
	require.Error(t, err)
	assert.Equal(t, osprerr.KindValidation, osprerr.KindOf(err))

	_, err = s.CreateDailySchedule(ctx, jobID, 0, 60)
	require.Error(t, err)
	assert.Equal(t, osprerr.KindValidation, osprerr.KindOf(err))
}
