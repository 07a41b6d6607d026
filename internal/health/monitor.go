package health

import (
	"sync"
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// missedPeriods is how many schedule periods a job may go without completing
// an invocation before it is critical.
const missedPeriods = 3

// Invocation is the part of an invocation outcome the monitor tracks.
type Invocation struct {
	Job       string
	Outcome   domain.Outcome
	Message   string
	Cursor    uint64
	QueueSize int
}

type jobState struct {
	period     time.Duration
	registered time.Time
	last       *Invocation
	lastAt     time.Time
	runs       int
	failures   int
}

// Monitor aggregates invocation outcomes of the scheduled jobs.
type Monitor struct {
	mu   sync.RWMutex
	jobs map[string]*jobState
	now  func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		jobs: make(map[string]*jobState),
		now:  time.Now,
	}
}

// Register starts tracking a job scheduled every period.
func (m *Monitor) Register(job string, period time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job] = &jobState{period: period, registered: m.now()}
}

// Record stores the outcome of a completed invocation.
func (m *Monitor) Record(inv Invocation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.jobs[inv.Job]
	if !ok {
		st = &jobState{registered: m.now()}
		m.jobs[inv.Job] = st
	}
	st.last = &inv
	st.lastAt = m.now()
	st.runs++
	if inv.Outcome == domain.OutcomeFailed {
		st.failures++
	}
}

// CheckHealth evaluates every registered job.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Jobs:         make(map[string]JobHealth, len(m.jobs)),
	}

	for name, st := range m.jobs {
		h := JobHealth{
			Job:      name,
			Status:   StatusHealthy,
			Runs:     st.runs,
			Failures: st.failures,
		}

		since := st.registered
		if st.last != nil {
			lastAt := st.lastAt
			h.LastRun = &lastAt
			h.LastOutcome = string(st.last.Outcome)
			h.LastMessage = st.last.Message
			h.Cursor = st.last.Cursor
			h.QueueSize = st.last.QueueSize
			since = st.lastAt

			if st.last.Outcome == domain.OutcomeFailed {
				h.Status = StatusDegraded
			}
		}
		if st.period > 0 && now.Sub(since) > missedPeriods*st.period {
			h.Status = StatusCritical
		}

		report.Jobs[name] = h
		report.SystemStatus = worst(report.SystemStatus, h.Status)
	}
	return report
}

func worst(a, b SystemStatus) SystemStatus {
	if a == StatusCritical || b == StatusCritical {
		return StatusCritical
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
