package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application counters. Zero value is not usable; use NewMetrics.
type Metrics struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64

	runsTotal     atomic.Uint64
	runsRunning   atomic.Int64
	runsCompleted atomic.Uint64
	runsFailed    atomic.Uint64
	suggestions   atomic.Uint64

	wsConnections atomic.Int64
	eventsDropped atomic.Uint64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RunStarted dipanggil saat background run mulai jalan
func (m *Metrics) RunStarted() {
	m.runsTotal.Add(1)
	m.runsRunning.Add(1)
}

// RunFinished records the terminal outcome of a run.
func (m *Metrics) RunFinished(ok bool, suggestions int) {
	m.runsRunning.Add(-1)
	if ok {
		m.runsCompleted.Add(1)
	} else {
		m.runsFailed.Add(1)
	}
	m.suggestions.Add(uint64(suggestions))
}

func (m *Metrics) ConnOpened() { m.wsConnections.Add(1) }
func (m *Metrics) ConnClosed() { m.wsConnections.Add(-1) }

// EventDropped counts events discarded because a client send buffer was full.
func (m *Metrics) EventDropped() { m.eventsDropped.Add(1) }

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       m.requestsTotal.Load(),
		"requests_in_progress": m.requestsInProgress.Load(),
		"requests_success":     m.requestsSuccess.Load(),
		"requests_failed":      m.requestsFailed.Load(),
		"runs_total":           m.runsTotal.Load(),
		"runs_running":         m.runsRunning.Load(),
		"runs_completed":       m.runsCompleted.Load(),
		"runs_failed":          m.runsFailed.Load(),
		"suggestions_total":    m.suggestions.Load(),
		"ws_connections":       m.wsConnections.Load(),
		"events_dropped":       m.eventsDropped.Load(),
		"uptime_seconds":       time.Since(m.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsTotal.Add(1)
		m.requestsInProgress.Add(1)
		defer m.requestsInProgress.Add(-1)

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.requestsSuccess.Add(1)
		} else {
			m.requestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
