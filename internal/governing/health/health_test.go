package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/governor/internal/governing/poller"
)

// =============================================================================
// Mocks
// =============================================================================

type stubSource struct {
	status poller.Status
}

func (s *stubSource) Status() poller.Status { return s.status }

type stubTasks struct {
	running int
}

func (s *stubTasks) Running() int { return s.running }

var now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newMonitor(st poller.Status) *Monitor {
	m := NewMonitor(&stubSource{status: st}, &stubTasks{running: 2}, DefaultThresholds(10*time.Second))
	m.now = func() time.Time { return now }
	return m
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	m := newMonitor(poller.Status{
		Phase:       poller.PhasePolling,
		Cursor:      995,
		Head:        1000,
		LastSuccess: now.Add(-5 * time.Second),
	})

	report := m.CheckHealth()
	if report.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.BlockLag != 5 {
		t.Errorf("expected lag 5, got %d", report.BlockLag)
	}
	if report.RunningTasks != 2 {
		t.Errorf("expected 2 running tasks, got %d", report.RunningTasks)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	tests := []struct {
		name   string
		status poller.Status
	}{
		{
			name:   "initializing",
			status: poller.Status{Phase: poller.PhaseInitializing},
		},
		{
			name: "lagging",
			status: poller.Status{
				Phase: poller.PhasePolling, Cursor: 950, Head: 1000,
				LastSuccess: now.Add(-time.Second),
			},
		},
		{
			name: "stale",
			status: poller.Status{
				Phase: poller.PhasePolling, Cursor: 1000, Head: 1000,
				LastSuccess: now.Add(-45 * time.Second),
			},
		},
		{
			name: "never succeeded",
			status: poller.Status{
				Phase: poller.PhasePolling, LastError: "connection refused",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newMonitor(tt.status).CheckHealth()
			if report.Status != StatusDegraded {
				t.Errorf("expected degraded, got %s", report.Status)
			}
		})
	}
}

func TestMonitor_Critical(t *testing.T) {
	m := newMonitor(poller.Status{
		Phase:       poller.PhasePolling,
		Cursor:      1000,
		Head:        1000,
		LastSuccess: now.Add(-5 * time.Minute),
		LastError:   "read head: timeout",
	})

	report := m.CheckHealth()
	if report.Status != StatusCritical {
		t.Errorf("expected critical, got %s", report.Status)
	}
	if m.LastReport().LastError != "read head: timeout" {
		t.Errorf("expected last report to carry the error, got %q", m.LastReport().LastError)
	}
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name     string
		status   poller.Status
		wantCode int
		want     SystemStatus
	}{
		{
			name:     "healthy",
			status:   poller.Status{Phase: poller.PhasePolling, LastSuccess: now},
			wantCode: http.StatusOK,
			want:     StatusHealthy,
		},
		{
			name:     "critical",
			status:   poller.Status{Phase: poller.PhasePolling, Cursor: 0, Head: 500, LastSuccess: now},
			wantCode: http.StatusServiceUnavailable,
			want:     StatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(newMonitor(tt.status), 0)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["status"] != string(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, body["status"])
			}
		})
	}
}

func TestServer_Detailed(t *testing.T) {
	srv := NewServer(newMonitor(poller.Status{Phase: poller.PhasePolling, Cursor: 7, Head: 9, LastSuccess: now}), 0)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if report.Cursor != 7 || report.Head != 9 || report.BlockLag != 2 || report.RunningTasks != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
}
