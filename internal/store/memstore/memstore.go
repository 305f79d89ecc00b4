// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memstore is the in-memory Store implementation: a
// sync.Mutex-guarded set of maps plus monotonic counters, used by tests and
// as a zero-dependency fallback mode (no DATABASE_URL configured).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/musergi/ospreid/internal/osprerr"
	"github.com/musergi/ospreid/internal/store"
)

// Store is the in-memory store.Store implementation.
type Store struct {
	mu sync.Mutex

	nextJobID       int64
	nextStageID     int64
	nextExecutionID int64
	nextScheduleID  int64

	jobs        map[int64]store.Job
	stages      map[int64]store.Stage
	stagesByJob map[int64][]int64
	executions  map[int64]store.Execution
	schedules   map[int64]store.Schedule
	templates   map[string]store.Template

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store, seeded with a "git" template that
// runs the same image as the implicit checkout stage (template catalog
// *seeding* content is out of core scope; this one entry keeps the store
// usable stand-alone without an external seeding step). The checkout stage
// itself comes from checkoutDefinition, not from this template.
func New() *Store {
	s := &Store{
		jobs:        make(map[int64]store.Job),
		stages:      make(map[int64]store.Stage),
		stagesByJob: make(map[int64][]int64),
		executions:  make(map[int64]store.Execution),
		schedules:   make(map[int64]store.Schedule),
		templates:   make(map[string]store.Template),
		now:         time.Now,
	}
	s.templates["git"] = store.Template{
		Name: "git",
		Definition: store.StageDefinition{
			Image:      store.CheckoutImage,
			WorkingDir: store.CheckoutDir,
		},
	}
	return s
}

// Init creates tables if missing (a no-op for memstore, which has no
// schema) and reaps any Execution left Running by a prior crash. Since
// memstore never survives a process restart, this only matters for tests
// that seed a Running execution directly before calling Init.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exec := range s.executions {
		if exec.Status == nil {
			status := store.StatusUnknown
			exec.Status = &status
			exec.EndTime = &now
			s.executions[id] = exec
		}
	}
	return nil
}

// Close is a no-op for memstore.
func (s *Store) Close() error { return nil }

func (s *Store) CreateJob(ctx context.Context, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	jobID := s.nextJobID
	s.jobs[jobID] = store.Job{ID: jobID, Source: source}

	s.nextStageID++
	stageID := s.nextStageID
	checkout := store.Stage{
		ID:         stageID,
		JobID:      jobID,
		Dependency: nil,
		Definition: checkoutDefinition(source),
	}
	s.stages[stageID] = checkout
	s.stagesByJob[jobID] = []int64{stageID}

	return jobID, nil
}

func checkoutDefinition(source string) store.StageDefinition {
	return store.StageDefinition{
		Name:       store.CheckoutStageName,
		Image:      store.CheckoutImage,
		WorkingDir: store.WorkspaceDir,
		Environment: []store.EnvVar{
			{Name: "SOURCE", Value: source},
		},
	}
}

func (s *Store) JobIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sortInt64s(ids)
	return ids, nil
}

func (s *Store) JobSource(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return "", osprerr.NotFound("job %d not found", id)
	}
	return job.Source, nil
}

func (s *Store) JobStatus(ctx context.Context, id int64) (*store.ExecutionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return nil, osprerr.NotFound("job %d not found", id)
	}
	var latest *store.Execution
	for _, exec := range s.executions {
		if exec.JobID != id {
			continue
		}
		if latest == nil || exec.ID > latest.ID {
			e := exec
			latest = &e
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Status, nil
}

func (s *Store) StagesForJob(ctx context.Context, jobID int64) ([]store.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, osprerr.NotFound("job %d not found", jobID)
	}
	ids := append([]int64(nil), s.stagesByJob[jobID]...)
	sortInt64s(ids)
	stages := make([]store.Stage, 0, len(ids))
	for _, id := range ids {
		stages = append(stages, s.stages[id])
	}
	return stages, nil
}

func (s *Store) CreateStage(ctx context.Context, jobID int64, dependency *int64, def store.StageDefinition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return 0, osprerr.NotFound("job %d not found", jobID)
	}
	if dependency == nil {
		return 0, osprerr.Invalid("dependency is required for a non-checkout stage")
	}
	dep, ok := s.stages[*dependency]
	if !ok || dep.JobID != jobID {
		return 0, osprerr.Invalid("dependency %d is not a stage of job %d", *dependency, jobID)
	}
	if def.Name == "" {
		return 0, osprerr.Invalid("stage name must be non-empty")
	}

	s.nextStageID++
	stageID := s.nextStageID
	depCopy := *dependency
	s.stages[stageID] = store.Stage{ID: stageID, JobID: jobID, Dependency: &depCopy, Definition: def}
	s.stagesByJob[jobID] = append(s.stagesByJob[jobID], stageID)
	return stageID, nil
}

func (s *Store) CreateExecution(ctx context.Context, jobID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return 0, osprerr.NotFound("job %d not found", jobID)
	}
	s.nextExecutionID++
	id := s.nextExecutionID
	s.executions[id] = store.Execution{
		ID:        id,
		JobID:     jobID,
		StartTime: s.now(),
	}
	return id, nil
}

func (s *Store) SetExecutionTerminal(ctx context.Context, id int64, status store.ExecutionStatus, stdout, stderr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return osprerr.NotFound("execution %d not found", id)
	}
	if exec.Status != nil {
		return osprerr.Invalid("execution %d is already terminal", id)
	}
	now := s.now()
	exec.Status = &status
	exec.EndTime = &now
	exec.Stdout = stdout
	exec.Stderr = stderr
	s.executions[id] = exec
	return nil
}

func (s *Store) ExecutionIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.executions))
	for id := range s.executions {
		ids = append(ids, id)
	}
	sortInt64s(ids)
	reverse(ids)
	return ids, nil
}

func (s *Store) ExecutionStatus(ctx context.Context, id int64) (*store.ExecutionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, osprerr.NotFound("execution %d not found", id)
	}
	return exec.Status, nil
}

func (s *Store) ExecutionDuration(ctx context.Context, id int64) (*time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, osprerr.NotFound("execution %d not found", id)
	}
	return exec.Duration(), nil
}

func (s *Store) Execution(ctx context.Context, id int64) (store.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return store.Execution{}, osprerr.NotFound("execution %d not found", id)
	}
	return exec, nil
}

func (s *Store) ExecutionStdout(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return "", osprerr.NotFound("execution %d not found", id)
	}
	return exec.Stdout, nil
}

func (s *Store) ExecutionStderr(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return "", osprerr.NotFound("execution %d not found", id)
	}
	return exec.Stderr, nil
}

func (s *Store) CreateDailySchedule(ctx context.Context, jobID int64, hour, minute int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return 0, osprerr.NotFound("job %d not found", jobID)
	}
	if hour < 0 || hour > 23 {
		return 0, osprerr.Invalid("hour %d out of range [0,23]", hour)
	}
	if minute < 0 || minute > 59 {
		return 0, osprerr.Invalid("minute %d out of range [0,59]", minute)
	}
	s.nextScheduleID++
	id := s.nextScheduleID
	s.schedules[id] = store.Schedule{ID: id, JobID: jobID, Hour: hour, Minute: minute}
	return id, nil
}

func (s *Store) AllSchedules(ctx context.Context) ([]store.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.schedules))
	for id := range s.schedules {
		ids = append(ids, id)
	}
	sortInt64s(ids)
	out := make([]store.Schedule, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.schedules[id])
	}
	return out, nil
}

func (s *Store) TemplateNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sortStrings(names)
	return names, nil
}

func (s *Store) Template(ctx context.Context, name string) (store.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl, ok := s.templates[name]
	if !ok {
		return store.Template{}, osprerr.NotFound("template %q not found", name)
	}
	return tmpl, nil
}

// AddTemplate lets callers (config loading, tests) register templates.
func (s *Store) AddTemplate(ctx context.Context, tmpl store.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tmpl.Name] = tmpl
	return nil
}

func sortInt64s(s []int64) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

func sortStrings(s []string) {
	sort.Strings(s)
}

func reverse(s []int64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
