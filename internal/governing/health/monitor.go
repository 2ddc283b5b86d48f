package health

import (
	"sync"
	"time"

	"github.com/vietddude/governor/internal/governing/poller"
)

// StatusSource exposes the poll loop's liveness snapshot.
type StatusSource interface {
	Status() poller.Status
}

// TaskCounter reports lifecycle tasks in flight.
type TaskCounter interface {
	Running() int
}

// Thresholds tune status evaluation. Stale durations are measured from the
// last successful poll tick.
type Thresholds struct {
	DegradedLag   uint64
	CriticalLag   uint64
	DegradedStale time.Duration
	CriticalStale time.Duration
}

// DefaultThresholds derives thresholds from the poll interval.
func DefaultThresholds(interval time.Duration) Thresholds {
	return Thresholds{
		DegradedLag:   10,
		CriticalLag:   100,
		DegradedStale: 3 * interval,
		CriticalStale: 10 * interval,
	}
}

// Monitor aggregates health status from the poller and the task runner.
type Monitor struct {
	source     StatusSource
	tasks      TaskCounter
	thresholds Thresholds
	now        func() time.Time

	mu         sync.Mutex
	lastReport Report
}

// NewMonitor creates a new health monitor. tasks may be nil.
func NewMonitor(source StatusSource, tasks TaskCounter, thresholds Thresholds) *Monitor {
	return &Monitor{
		source:     source,
		tasks:      tasks,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// CheckHealth evaluates the current snapshot.
func (m *Monitor) CheckHealth() Report {
	st := m.source.Status()

	report := Report{
		Status:      StatusHealthy,
		Phase:       string(st.Phase),
		Cursor:      st.Cursor,
		Head:        st.Head,
		BlockLag:    st.Lag(),
		LastSuccess: st.LastSuccess,
		LastError:   st.LastError,
	}
	if m.tasks != nil {
		report.RunningTasks = m.tasks.Running()
	}

	var stale time.Duration
	if !st.LastSuccess.IsZero() {
		stale = m.now().Sub(st.LastSuccess)
	}

	// Evaluate Status
	switch {
	case st.Phase != poller.PhasePolling:
		report.Status = StatusDegraded
	case st.LastSuccess.IsZero() && st.LastError != "":
		report.Status = StatusDegraded
	case report.BlockLag > m.thresholds.CriticalLag,
		m.thresholds.CriticalStale > 0 && stale > m.thresholds.CriticalStale:
		report.Status = StatusCritical
	case report.BlockLag > m.thresholds.DegradedLag,
		m.thresholds.DegradedStale > 0 && stale > m.thresholds.DegradedStale:
		report.Status = StatusDegraded
	}

	m.mu.Lock()
	m.lastReport = report
	m.mu.Unlock()
	return report
}

// LastReport returns the most recent report without re-evaluating.
func (m *Monitor) LastReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReport
}
