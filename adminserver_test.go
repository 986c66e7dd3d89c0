package jobmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAdminServerJobsAndStatus(t *testing.T) {
	t.Helper()
	m := New[string, int, int](Config{JobLimit: 4, NotificationsLimit: 8, EventsLimit: 4, JobConcurrency: 2}, nil, NewLogger())
	defer m.Close()

	block := make(chan struct{})
	job := NewJob[string, int, int]("a", func(ctx context.Context, emit func(int) error, yield func(int) error) error {
		<-block
		return nil
	})
	if !m.Submit(job) {
		t.Fatalf("expected submit to succeed")
	}
	time.Sleep(20 * time.Millisecond)

	srv := NewAdminServer[string, int, int](m, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	var jobs jobsResponse[string]
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode /jobs: %v", err)
	}
	if jobs.Count != 1 || jobs.Jobs[0] != "a" {
		t.Fatalf("expected one job 'a', got %+v", jobs)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/a", nil))
	var st statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode /jobs/a: %v", err)
	}
	if !st.Found || st.Status != "running" {
		t.Fatalf("expected found running, got %+v", st)
	}

	close(block)
}

func TestAdminServerUnknownJobIsNotFound(t *testing.T) {
	t.Helper()
	m := New[string, int, int](Config{}, nil, NewLogger())
	defer m.Close()
	srv := NewAdminServer[string, int, int](m, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	var st statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Found {
		t.Fatalf("expected not found for unsubmitted id")
	}
}
