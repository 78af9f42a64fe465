package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe statuses reported per component and for the aggregate.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one component. A nil return means healthy; the error
// message becomes the component's readiness message.
type CheckFunc func(ctx context.Context) error

// CheckResult is one component's probe outcome.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	// DurationMS is how long the probe took, in milliseconds.
	DurationMS float64 `json:"duration_ms"`
}

// Report is the aggregate health of the process at one instant.
type Report struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Checker runs named readiness probes. Liveness is unconditional (the
// process answered); readiness degrades when any registered probe fails,
// so a broken ledger or an unloadable policy pack pulls the instance out
// of rotation without killing it.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// DefaultTimeout bounds each probe when the caller passes zero.
const DefaultTimeout = 5 * time.Second

// New creates a checker. Each probe gets at most timeout to answer.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

// Register adds a named probe, replacing any existing probe with the same
// name.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Names returns the registered probe names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Liveness reports that the process is up. It runs no probes; a deadlocked
// ledger must not make the orchestrator restart the process that holds it.
func (c *Checker) Liveness(ctx context.Context) Report {
	return Report{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
	}
}

// Readiness runs every registered probe concurrently and aggregates.
// Any failing probe degrades the report; no probes means ready.
func (c *Checker) Readiness(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{
		Status:    StatusReady,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
	}
	if len(checks) == 0 {
		return report
	}

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			result := c.run(ctx, check)

			resultMu.Lock()
			report.Checks[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	for _, result := range report.Checks {
		if result.Status == StatusUnhealthy {
			report.Status = StatusDegraded
			break
		}
	}
	return report
}

// run executes one probe under the checker's timeout. A probe that ignores
// its context still cannot wedge readiness; the result just reports the
// timeout.
func (c *Checker) run(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- check(checkCtx)
	}()

	select {
	case err := <-errCh:
		elapsed := float64(time.Since(start)) / float64(time.Millisecond)
		if err != nil {
			return CheckResult{
				Status:     StatusUnhealthy,
				Message:    err.Error(),
				DurationMS: elapsed,
			}
		}
		return CheckResult{
			Status:     StatusOK,
			DurationMS: elapsed,
		}

	case <-checkCtx.Done():
		return CheckResult{
			Status:     StatusUnhealthy,
			Message:    "probe timed out",
			DurationMS: float64(time.Since(start)) / float64(time.Millisecond),
		}
	}
}
