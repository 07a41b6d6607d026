package provider

import (
	"sync"
	"time"

	"github.com/vietddude/keeper/internal/metrics"
)

// BaseProvider implements common provider functionality.
// It handles health tracking, metrics, and basic status checks.
type BaseProvider struct {
	Name string

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ProviderMonitor
}

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(name string) *BaseProvider {
	return &BaseProvider{
		Name: name,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewProviderMonitor(),
	}
}

// GetName returns the provider's name.
func (p *BaseProvider) GetName() string {
	return p.Name
}

// GetHealth returns the provider's health status.
func (p *BaseProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	h := p.health
	p.mu.RUnlock()

	stats := p.Monitor.GetStats()
	h.MonitorStats = &stats
	return h
}

// IsAvailable checks if the provider is available.
func (p *BaseProvider) IsAvailable() bool {
	status := p.Monitor.CheckProviderStatus()
	return status == StatusHealthy || status == StatusDegraded
}

// RecordSuccess updates health and metrics after a successful call.
func (p *BaseProvider) RecordSuccess(method string, latency time.Duration) {
	p.mu.Lock()
	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)
	p.mu.Unlock()

	p.Monitor.RecordRequest(latency)
	metrics.RPCCallsTotal.WithLabelValues(p.Name, method).Inc()
	metrics.RPCLatency.WithLabelValues(p.Name, method).Observe(latency.Seconds())
}

// RecordFailure updates health and metrics after a failed call.
func (p *BaseProvider) RecordFailure(method string) {
	p.mu.Lock()
	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
	p.mu.Unlock()

	metrics.RPCCallsTotal.WithLabelValues(p.Name, method).Inc()
	metrics.RPCErrorsTotal.WithLabelValues(p.Name, method).Inc()
}
