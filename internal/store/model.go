// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the sole gateway to Osprei's durable state: jobs,
// stages, executions, schedules and templates.
package store

import (
	"context"
	"time"
)

// ExecutionStatus is a terminal status for an Execution. A nil
// *ExecutionStatus anywhere in this package's API means "Running"; the
// nullable-column convention of the SQL schema never leaks past sqlstore.
type ExecutionStatus int

const (
	// StatusSuccess means every stage exited zero.
	StatusSuccess ExecutionStatus = iota
	// StatusFailure means a stage exited non-zero, or a runtime fault, or
	// a malformed job (empty stage list) stopped the run.
	StatusFailure
	// StatusUnknown means the execution was reaped after a process crash.
	StatusUnknown
)

// String renders the status the way the HTTP API exposes it.
func (s ExecutionStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailure:
		return "Failure"
	case StatusUnknown:
		return "Unknown"
	default:
		return "Running"
	}
}

// JobStatusLabel renders the label GET /job/{id}/status returns, which
// distinguishes "never executed" from any ExecutionStatus (including the
// implicit Running state of the latest execution).
func JobStatusLabel(status *ExecutionStatus) string {
	if status == nil {
		return "Not executed"
	}
	return status.String()
}

// WorkspaceDir is the mount point every stage container shares.
const WorkspaceDir = "/workspace"

// CheckoutDir is where the checkout stage clones the job's source.
const CheckoutDir = WorkspaceDir + "/code"

// CheckoutStageName is the name of the implicit root stage created by
// CreateJob.
const CheckoutStageName = "checkout"

// CheckoutImage is the pre-built git image the checkout stage runs.
const CheckoutImage = "alpine/git:latest"

// EnvVar is one NAME=VALUE pair of a StageDefinition's environment.
type EnvVar struct {
	Name  string
	Value string
}

// StageDefinition is the serialised payload describing how to run a stage.
type StageDefinition struct {
	Name        string
	Image       string
	Environment []EnvVar
	WorkingDir  string
	Command     []string
}

// Job is a CI target identified by a Git source URL.
type Job struct {
	ID     int64
	Source string
}

// Stage is one containerised step of a job's DAG.
type Stage struct {
	ID         int64
	JobID      int64
	Dependency *int64
	Definition StageDefinition
}

// IsCheckout reports whether this stage is the implicit root stage.
func (s Stage) IsCheckout() bool {
	return s.Dependency == nil
}

// Execution is a single run of a job's stage DAG.
type Execution struct {
	ID        int64
	JobID     int64
	StartTime time.Time
	EndTime   *time.Time
	Status    *ExecutionStatus
	Stdout    string
	Stderr    string
}

// Duration returns EndTime - StartTime, or nil while running.
func (e Execution) Duration() *time.Duration {
	if e.EndTime == nil {
		return nil
	}
	d := e.EndTime.Sub(e.StartTime)
	return &d
}

// Schedule triggers a job run daily at Hour:Minute UTC.
type Schedule struct {
	ID     int64
	JobID  int64
	Hour   int
	Minute int
}

// Template is a named factory for stage definitions.
type Template struct {
	Name       string
	Definition StageDefinition
}

// Materialize merges a template's partial definition with a caller-supplied
// stage name, per the original implementation's template-materialisation
// semantics (the template's own Name field, if any, is ignored).
func (t Template) Materialize(name string) StageDefinition {
	def := t.Definition
	def.Name = name
	return def
}

// Store is the sole gateway to durable state. Two implementations exist:
// memstore (in-memory) and sqlstore (database/sql + sqlite).
type Store interface {
	CreateJob(ctx context.Context, source string) (int64, error)
	JobIDs(ctx context.Context) ([]int64, error)
	JobSource(ctx context.Context, id int64) (string, error)
	JobStatus(ctx context.Context, id int64) (*ExecutionStatus, error)

	StagesForJob(ctx context.Context, jobID int64) ([]Stage, error)
	CreateStage(ctx context.Context, jobID int64, dependency *int64, def StageDefinition) (int64, error)

	CreateExecution(ctx context.Context, jobID int64) (int64, error)
	SetExecutionTerminal(ctx context.Context, id int64, status ExecutionStatus, stdout, stderr string) error
	ExecutionIDs(ctx context.Context) ([]int64, error)
	ExecutionStatus(ctx context.Context, id int64) (*ExecutionStatus, error)
	ExecutionDuration(ctx context.Context, id int64) (*time.Duration, error)
	Execution(ctx context.Context, id int64) (Execution, error)
	ExecutionStdout(ctx context.Context, id int64) (string, error)
	ExecutionStderr(ctx context.Context, id int64) (string, error)

	CreateDailySchedule(ctx context.Context, jobID int64, hour, minute int) (int64, error)
	AllSchedules(ctx context.Context) ([]Schedule, error)

	TemplateNames(ctx context.Context) ([]string, error)
	Template(ctx context.Context, name string) (Template, error)

	// Init creates tables if missing and reaps any Execution left Running
	// by a prior crash into Unknown.
	Init(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// TemplateSeeder is implemented by both Store backends to let startup
// register the configured template catalog. It is a separate interface
// from Store because seeding is a startup-time concern, not part of the
// steady-state API the engine and HTTP surface depend on.
type TemplateSeeder interface {
	AddTemplate(ctx context.Context, tmpl Template) error
}
