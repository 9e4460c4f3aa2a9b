package enforcer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ProbeStatus is the result of one health probe.
type ProbeStatus string

const (
	ProbeOK   ProbeStatus = "ok"
	ProbeDown ProbeStatus = "down"
)

// Status is the aggregated health of the control plane.
type Status string

const (
	// StatusHealthy means every registered probe passed.
	StatusHealthy Status = "healthy"

	// StatusDegraded means only non-critical probes failed.
	StatusDegraded Status = "degraded"

	// StatusDown means at least one critical probe failed.
	StatusDown Status = "down"
)

// ProbeFunc checks one dependency. It returns nil when the dependency is
// usable, or an error describing the problem.
type ProbeFunc func(ctx context.Context) error

// ProbeReport is the outcome of one probe run.
type ProbeReport struct {
	// Name is the probe's registered name.
	Name string `json:"name"`

	// Status is ok or down.
	Status ProbeStatus `json:"status"`

	// Critical marks probes whose failure must fail requests closed.
	Critical bool `json:"critical"`

	// Message carries the probe error, if any.
	Message string `json:"message,omitempty"`

	// Duration is how long the probe took.
	Duration time.Duration `json:"duration_ms,omitempty"`
}

// HealthReport aggregates all probe runs.
type HealthReport struct {
	// Status is healthy, degraded, or down.
	Status Status `json:"status"`

	// Probes holds per-probe results, sorted by name.
	Probes []ProbeReport `json:"probes,omitempty"`

	// CheckedAt is when the probes ran.
	CheckedAt time.Time `json:"checked_at"`
}

type probe struct {
	fn       ProbeFunc
	critical bool
}

// healthRegistry runs named probes concurrently with a per-probe timeout.
type healthRegistry struct {
	mu           sync.RWMutex
	probes       map[string]probe
	probeTimeout time.Duration
}

func newHealthRegistry(probeTimeout time.Duration) *healthRegistry {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &healthRegistry{
		probes:       make(map[string]probe),
		probeTimeout: probeTimeout,
	}
}

func (r *healthRegistry) register(name string, critical bool, fn ProbeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe{fn: fn, critical: critical}
}

func (r *healthRegistry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.probes, name)
}

// check runs every probe and aggregates. No probes means healthy.
func (r *healthRegistry) check(ctx context.Context, now time.Time) HealthReport {
	r.mu.RLock()
	probes := make(map[string]probe, len(r.probes))
	for name, p := range r.probes {
		probes[name] = p
	}
	r.mu.RUnlock()

	report := HealthReport{Status: StatusHealthy, CheckedAt: now}
	if len(probes) == 0 {
		return report
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, p := range probes {
		wg.Add(1)
		go func(name string, p probe) {
			defer wg.Done()
			result := r.runProbe(ctx, name, p)
			mu.Lock()
			report.Probes = append(report.Probes, result)
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	sort.Slice(report.Probes, func(i, j int) bool {
		return report.Probes[i].Name < report.Probes[j].Name
	})

	for _, p := range report.Probes {
		if p.Status != ProbeDown {
			continue
		}
		if p.Critical {
			report.Status = StatusDown
			break
		}
		report.Status = StatusDegraded
	}

	return report
}

func (r *healthRegistry) runProbe(ctx context.Context, name string, p probe) ProbeReport {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	start := time.Now()
	errChan := make(chan error, 1)
	go func() {
		errChan <- p.fn(probeCtx)
	}()

	select {
	case err := <-errChan:
		result := ProbeReport{
			Name:     name,
			Status:   ProbeOK,
			Critical: p.critical,
			Duration: time.Since(start),
		}
		if err != nil {
			result.Status = ProbeDown
			result.Message = err.Error()
		}
		return result

	case <-probeCtx.Done():
		return ProbeReport{
			Name:     name,
			Status:   ProbeDown,
			Critical: p.critical,
			Message:  "health probe timeout",
			Duration: time.Since(start),
		}
	}
}
