package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"coffeeshop/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// health handles GET /healthz. It always answers 200 while the process is
// serving; the body tells how many workers are still running.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	statuses := s.workers.Statuses()
	running := 0
	for _, st := range statuses {
		if st.State == worker.Running.String() {
			running++
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Workers: len(statuses),
		Running: running,
	})
}

// listWorkers handles GET /workers
func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WorkersResponse{Workers: s.workers.Statuses()})
}

// getWorker handles GET /workers/{id}
func (s *Server) getWorker(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

// stopWorker handles DELETE /workers/{id}. The worker finishes its current
// cycle and closes its sinks on its own goroutine.
func (s *Server) stopWorker(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Stop()
	logrus.WithField("worker", sess.ID()).Info("stop requested over http")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*worker.Session, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "worker id must be an integer")
		return nil, false
	}
	sess, ok := s.workers.Session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "worker not found")
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.Debugf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
