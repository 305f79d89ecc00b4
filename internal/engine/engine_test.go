// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/musergi/ospreid/internal/logging"
	"github.com/musergi/ospreid/internal/runtime"
	"github.com/musergi/ospreid/internal/store"
	"github.com/musergi/ospreid/internal/store/memstore"
)

type fakeRuntime struct {
	createVolumeErr error
	runStageFunc    func(spec runtime.StageSpec) (runtime.StageResult, error)
	removedVolumes  []string
}

func (f *fakeRuntime) CreateVolume(ctx context.Context) (string, error) {
	if f.createVolumeErr != nil {
		return "", f.createVolumeErr
	}
	return "vol-1", nil
}

func (f *fakeRuntime) RemoveVolume(ctx context.Context, name string) error {
	f.removedVolumes = append(f.removedVolumes, name)
	return nil
}

func (f *fakeRuntime) RunStage(ctx context.Context, spec runtime.StageSpec) (runtime.StageResult, error) {
	if f.runStageFunc != nil {
		return f.runStageFunc(spec)
	}
	return runtime.StageResult{ExitCode: 0, Stdout: "ok"}, nil
}

func newJobWithStage(t *testing.T, s store.Store) int64 {
	t.Helper()
	ctx := context.Background()
	jobID, err := s.CreateJob(ctx, "https://example.invalid/repo.git")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	stages, err := s.StagesForJob(ctx, jobID)
	if err != nil {
		t.Fatalf("StagesForJob: %v", err)
	}
	checkout := stages[0].ID
	_, err = s.CreateStage(ctx, jobID, &checkout, store.StageDefinition{
		Name:    "build",
		Image:   "golang:1.24",
		Command: []string{"go", "build", "./..."},
	})
	if err != nil {
		t.Fatalf("CreateStage: %v", err)
	}
	return jobID
}

func awaitTerminal(t *testing.T, s store.Store, executionID int64) store.Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := s.Execution(context.Background(), executionID)
		if err != nil {
			t.Fatalf("Execution: %v", err)
		}
		if exec.Status != nil {
			return exec
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("execution %d never reached a terminal state", executionID)
	return store.Execution{}
}

func newTestLogger() logging.Logger {
	return logging.NewLoggerTo(false, new(nopWriter), new(nopWriter))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestEngine_Start_AllStagesSucceed(t *testing.T) {
	s := memstore.New()
	jobID := newJobWithStage(t, s)

	e := New(s, &fakeRuntime{}, newTestLogger())
	execID, err := e.Start(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exec := awaitTerminal(t, s, execID)
	if *exec.Status != store.StatusSuccess {
		t.Fatalf("expected Success, got %v", *exec.Status)
	}
}

func TestEngine_Start_StageFailureStopsTheRun(t *testing.T) {
	s := memstore.New()
	jobID := newJobWithStage(t, s)

	var calls int
	fr := &fakeRuntime{runStageFunc: func(spec runtime.StageSpec) (runtime.StageResult, error) {
		calls++
		if spec.Image == store.CheckoutImage {
			return runtime.StageResult{ExitCode: 0}, nil
		}
		return runtime.StageResult{ExitCode: 1, Stderr: "boom"}, nil
	}}

	e := New(s, fr, newTestLogger())
	execID, err := e.Start(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exec := awaitTerminal(t, s, execID)
	if *exec.Status != store.StatusFailure {
		t.Fatalf("expected Failure, got %v", *exec.Status)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 RunStage calls (checkout + failing build), got %d", calls)
	}
	if len(fr.removedVolumes) != 1 {
		t.Fatalf("expected the volume to be removed exactly once, got %d removals", len(fr.removedVolumes))
	}
}

func TestEngine_Start_CreateVolumeFailureNeverRuns(t *testing.T) {
	s := memstore.New()
	jobID := newJobWithStage(t, s)

	var ran bool
	fr := &fakeRuntime{
		createVolumeErr: errors.New("engine unreachable"),
		runStageFunc: func(spec runtime.StageSpec) (runtime.StageResult, error) {
			ran = true
			return runtime.StageResult{}, nil
		},
	}

	e := New(s, fr, newTestLogger())
	execID, err := e.Start(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exec := awaitTerminal(t, s, execID)
	if *exec.Status != store.StatusFailure {
		t.Fatalf("expected Failure, got %v", *exec.Status)
	}
	if ran {
		t.Fatal("RunStage must not be called when CreateVolume fails")
	}
	if len(fr.removedVolumes) != 0 {
		t.Fatal("RemoveVolume must not be called when no volume was created")
	}
}

func TestTopoOrder_ParentsBeforeChildrenTiesAscending(t *testing.T) {
	a := int64(1)
	stages := []store.Stage{
		{ID: 3, Dependency: &a},
		{ID: 1},
		{ID: 2, Dependency: &a},
	}
	ordered := topoOrder(stages)
	var ids []int64
	for _, s := range ordered {
		ids = append(ids, s.ID)
	}
	want := []int64{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}
