package jobmanager

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/dustin/go-humanize"
)

// AdminServer is a small read-only introspection surface over a Manager: a
// plain net/http.Handler serving sonic-encoded JSON views of operator-
// relevant state. It adds no new manager behavior: every route is a thin
// wrapper around Status, JobIDs, LastEvents, and LastNotifications.
type AdminServer[I comparable, N any, R any] struct {
	mgr    *Manager[I, N, R]
	logger *Logger
}

// NewAdminServer wraps mgr for serving over HTTP.
func NewAdminServer[I comparable, N any, R any](mgr *Manager[I, N, R], logger *Logger) *AdminServer[I, N, R] {
	if logger == nil {
		logger = mgr.logger
	}
	return &AdminServer[I, N, R]{mgr: mgr, logger: logger}
}

type jobsResponse[I comparable] struct {
	Count int `json:"count"`
	Jobs  []I `json:"jobs"`
}

type statusResponse struct {
	Found  bool   `json:"found"`
	Status string `json:"status,omitempty"`
}

type eventResponse[I comparable] struct {
	Kind      string `json:"kind"`
	JobID     I      `json:"job_id"`
	StartedAt int64  `json:"started_at"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
}

type notificationResponse[I comparable, N any] struct {
	JobID I `json:"job_id"`
	Value N `json:"value"`
}

func (s *AdminServer[I, N, R]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/jobs" && r.Method == http.MethodGet:
		s.handleJobs(w, r)
	case strings.HasPrefix(r.URL.Path, "/jobs/") && r.Method == http.MethodGet:
		s.handleJobStatus(w, r)
	case r.URL.Path == "/events" && r.Method == http.MethodGet:
		s.handleEvents(w, r)
	case r.URL.Path == "/notifications" && r.Method == http.MethodGet:
		s.handleNotifications(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *AdminServer[I, N, R]) writeJSON(w http.ResponseWriter, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("admin server marshal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *AdminServer[I, N, R]) handleJobs(w http.ResponseWriter, _ *http.Request) {
	ids := s.mgr.JobIDs()
	s.writeJSON(w, jobsResponse[I]{Count: len(ids), Jobs: ids})
}

func (s *AdminServer[I, N, R]) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/jobs/")
	id, err := parseID[I](raw)
	if err != nil {
		http.Error(w, "unsupported id type for HTTP lookup", http.StatusBadRequest)
		return
	}
	status, ok := s.mgr.Status(id)
	if !ok {
		s.writeJSON(w, statusResponse{Found: false})
		return
	}
	s.writeJSON(w, statusResponse{Found: true, Status: status.String()})
}

func (s *AdminServer[I, N, R]) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := parseLimit(r)
	events, ok := s.mgr.LastEvents(n)
	if !ok {
		http.Error(w, "events stream closed", http.StatusServiceUnavailable)
		return
	}
	out := make([]eventResponse[I], 0, len(events))
	for _, e := range events {
		switch ev := e.(type) {
		case CompletedEvent[I]:
			out = append(out, eventResponse[I]{Kind: "completed", JobID: ev.JobID, StartedAt: ev.StartedAt, Duration: ev.Duration.String()})
		case FailedEvent[I]:
			out = append(out, eventResponse[I]{Kind: "failed", JobID: ev.JobID, StartedAt: ev.StartedAt, Duration: ev.Duration.String(), Error: ev.Err.Error()})
		}
	}
	s.logger.Debug("admin server served events", "count", humanize.Comma(int64(len(out))))
	s.writeJSON(w, out)
}

func (s *AdminServer[I, N, R]) handleNotifications(w http.ResponseWriter, r *http.Request) {
	n := parseLimit(r)
	notifications, ok := s.mgr.LastNotifications(n)
	if !ok {
		http.Error(w, "notifications stream closed", http.StatusServiceUnavailable)
		return
	}
	out := make([]notificationResponse[I, N], 0, len(notifications))
	for _, nt := range notifications {
		out = append(out, notificationResponse[I, N]{JobID: nt.JobID, Value: nt.Value})
	}
	s.logger.Debug("admin server served notifications", "count", humanize.Comma(int64(len(out))))
	s.writeJSON(w, out)
}

func parseLimit(r *http.Request) int {
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return n
}

// parseID converts a URL path segment into an id of type I. Only string ids
// are supported over HTTP; other id types must use the in-process API
// directly.
func parseID[I comparable](raw string) (I, error) {
	var id I
	if v, ok := any(raw).(I); ok {
		return v, nil
	}
	return id, errUnsupportedIDType
}
