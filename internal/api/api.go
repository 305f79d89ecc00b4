// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api mounts Osprei's HTTP surface on a chi.Router. Transport
// framing (listener setup, the middleware chain) is left to net/http and
// cmd/ospreid; this package only wires routes to handlers.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/musergi/ospreid/internal/engine"
	"github.com/musergi/ospreid/internal/logging"
	"github.com/musergi/ospreid/internal/osprerr"
	"github.com/musergi/ospreid/internal/store"
)

// Server is the HTTP surface over a Store and Engine.
type Server struct {
	store  store.Store
	engine *engine.Engine
	log    logging.Logger
}

// New builds a Server and its chi.Router.
func New(s store.Store, e *engine.Engine, log logging.Logger) *Server {
	return &Server{store: s, engine: e, log: log}
}

// Router returns the mounted chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.Get("/job", s.listJobs)
	r.Post("/job", s.createJob)
	r.Get("/job/{id}", s.getJob)
	r.Get("/job/{id}/status", s.jobStatus)
	r.Post("/job/{id}/run", s.runJob)
	r.Get("/job/{id}/stages", s.listStages)
	r.Post("/job/{id}/stages", s.createStage)
	r.Post("/job/{id}/schedule", s.createSchedule)

	r.Get("/execution", s.listExecutions)
	r.Get("/execution/{id}", s.getExecution)
	r.Get("/execution/{id}/stdout", s.executionStdout)
	r.Get("/execution/{id}/stderr", s.executionStderr)

	r.Get("/templates", s.listTemplates)

	return r
}

func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("request", logging.NewField("method", r.Method), logging.NewField("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}

// errorEnvelope is the body every non-2xx response carries.
type errorEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(osprerr.KindOf(err))
	writeJSON(w, status, errorEnvelope{Status: status, Message: err.Error()})
}

func httpStatus(kind osprerr.Kind) int {
	switch kind {
	case osprerr.KindValidation:
		return http.StatusBadRequest
	case osprerr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func pathInt64(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, osprerr.Invalid("%s must be an integer, got %q", key, raw)
	}
	return id, nil
}
