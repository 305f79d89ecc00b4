// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/musergi/ospreid/internal/osprerr"
	"github.com/musergi/ospreid/internal/store"
)

type envVarJSON struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type stageDefinitionJSON struct {
	Name        string       `json:"name"`
	Image       string       `json:"image"`
	Environment []envVarJSON `json:"environment"`
	WorkingDir  string       `json:"working_dir"`
	Command     []string     `json:"command"`
}

func definitionToJSON(def store.StageDefinition) stageDefinitionJSON {
	env := make([]envVarJSON, 0, len(def.Environment))
	for _, v := range def.Environment {
		env = append(env, envVarJSON{Name: v.Name, Value: v.Value})
	}
	return stageDefinitionJSON{
		Name:        def.Name,
		Image:       def.Image,
		Environment: env,
		WorkingDir:  def.WorkingDir,
		Command:     def.Command,
	}
}

type stageJSON struct {
	ID         int64               `json:"id"`
	Dependency *int64              `json:"dependency"`
	Definition stageDefinitionJSON `json:"definition"`
}

func stageToJSON(s store.Stage) stageJSON {
	return stageJSON{ID: s.ID, Dependency: s.Dependency, Definition: definitionToJSON(s.Definition)}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.JobIDs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

type createJobRequest struct {
	Source string `json:"source"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, osprerr.Invalid("malformed request body: %v", err))
		return
	}
	if req.Source == "" {
		writeError(w, osprerr.Invalid("source is required"))
		return
	}
	id, err := s.store.CreateJob(r.Context(), req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

type jobJSON struct {
	ID     int64  `json:"id"`
	Source string `json:"source"`
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	source, err := s.store.JobSource(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobJSON{ID: id, Source: source})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := s.store.JobStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, store.JobStatusLabel(status))
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	executionID, err := s.engine.Start(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executionID)
}

func (s *Server) listStages(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	stages, err := s.store.StagesForJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]stageJSON, 0, len(stages))
	for _, st := range stages {
		out = append(out, stageToJSON(st))
	}
	writeJSON(w, http.StatusOK, out)
}

type createStageRequest struct {
	Name       string `json:"name"`
	Dependency int64  `json:"dependency"`
	Template   string `json:"template"`
}

func (s *Server) createStage(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req createStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, osprerr.Invalid("malformed request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, osprerr.Invalid("name is required"))
		return
	}
	tmpl, err := s.store.Template(r.Context(), req.Template)
	if err != nil {
		if osprerr.KindOf(err) == osprerr.KindNotFound {
			err = osprerr.Invalid("unknown template %q", req.Template)
		}
		writeError(w, err)
		return
	}
	def := tmpl.Materialize(req.Name)
	dep := req.Dependency
	stageID, err := s.store.CreateStage(r.Context(), jobID, &dep, def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stageID)
}

type createScheduleRequest struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, osprerr.Invalid("malformed request body: %v", err))
		return
	}
	id, err := s.store.CreateDailySchedule(r.Context(), jobID, req.Hour, req.Minute)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ExecutionIDs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

type executionJSON struct {
	ID           int64      `json:"id"`
	Status       string     `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	DurationSecs *int64     `json:"duration_secs"`
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	exec, err := s.store.Execution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	label := "Running"
	if exec.Status != nil {
		label = exec.Status.String()
	}
	var durationSecs *int64
	if exec.EndTime != nil {
		secs := exec.EndTime.Unix() - exec.StartTime.Unix()
		durationSecs = &secs
	}
	writeJSON(w, http.StatusOK, executionJSON{
		ID:           exec.ID,
		Status:       label,
		StartTime:    exec.StartTime,
		EndTime:      exec.EndTime,
		DurationSecs: durationSecs,
	})
}

func (s *Server) executionStdout(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	stdout, err := s.store.ExecutionStdout(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(stdout))
}

func (s *Server) executionStderr(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	stderr, err := s.store.ExecutionStderr(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(stderr))
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.TemplateNames(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}
