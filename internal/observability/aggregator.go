package observability

import (
	"sort"
	"sync"
	"time"
)

// Health thresholds, expressed as percentages and milliseconds.
const (
	errorRateDegraded  = 5.0
	errorRateUnhealthy = 10.0
	avgLatencyDegraded = 5000.0

	recentErrorsKept = 10
	topShopsReported = 5
)

// Health states reported by the aggregated health endpoint.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Sample is one finished request as seen by the aggregator.
type Sample struct {
	Endpoint string
	Method   string
	Status   int
	Duration time.Duration
	Shop     string
	Error    string
}

// ErrorRecord is a retained failure, newest first in Snapshot output.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	Status    int       `json:"status"`
	Message   string    `json:"message"`
}

// ShopCount pairs a shop domain with its request count.
type ShopCount struct {
	Shop  string `json:"shop"`
	Count int64  `json:"count"`
}

// HealthStatus is the aggregator's verdict on service health.
type HealthStatus struct {
	Status        string   `json:"status"`
	ErrorRate     float64  `json:"errorRate"`
	AvgDurationMs float64  `json:"avgDurationMs"`
	TotalRequests int64    `json:"totalRequests"`
	Issues        []string `json:"issues,omitempty"`
}

// Snapshot is a point-in-time copy of the aggregated statistics.
type Snapshot struct {
	UptimeSeconds int64            `json:"uptimeSeconds"`
	Total         int64            `json:"totalRequests"`
	Success       int64            `json:"successfulRequests"`
	Errors        int64            `json:"failedRequests"`
	ErrorRate     float64          `json:"errorRate"`
	AvgDurationMs float64          `json:"avgDurationMs"`
	MinDurationMs float64          `json:"minDurationMs"`
	MaxDurationMs float64          `json:"maxDurationMs"`
	ByStatus      map[int]int64    `json:"requestsByStatus"`
	ByEndpoint    map[string]int64 `json:"requestsByEndpoint"`
	TopShops      []ShopCount      `json:"topShops"`
	RecentErrors  []ErrorRecord    `json:"recentErrors"`
}

// Aggregator accumulates request statistics in process memory. It backs
// the public health endpoint and complements Prometheus with the
// snapshot-style numbers the storefront widget's operators expect.
type Aggregator struct {
	mu sync.Mutex

	startedAt time.Time
	now       func() time.Time

	total   int64
	success int64
	errs    int64

	byStatus   map[int]int64
	byShop     map[string]int64
	byEndpoint map[string]int64

	totalDuration time.Duration
	minDuration   time.Duration
	maxDuration   time.Duration

	recent []ErrorRecord
}

// NewAggregator returns an empty aggregator anchored at the current time.
func NewAggregator() *Aggregator {
	return &Aggregator{
		startedAt:  time.Now(),
		now:        time.Now,
		byStatus:   make(map[int]int64),
		byShop:     make(map[string]int64),
		byEndpoint: make(map[string]int64),
	}
}

// Record folds one finished request into the running statistics.
func (a *Aggregator) Record(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if s.Status >= 400 {
		a.errs++
	} else {
		a.success++
	}

	a.byStatus[s.Status]++
	if s.Shop != "" {
		a.byShop[s.Shop]++
	}
	if s.Endpoint != "" {
		a.byEndpoint[s.Method+" "+s.Endpoint]++
	}

	a.totalDuration += s.Duration
	if a.minDuration == 0 || s.Duration < a.minDuration {
		a.minDuration = s.Duration
	}
	if s.Duration > a.maxDuration {
		a.maxDuration = s.Duration
	}

	if s.Status >= 400 {
		rec := ErrorRecord{
			Timestamp: a.now(),
			Endpoint:  s.Endpoint,
			Method:    s.Method,
			Status:    s.Status,
			Message:   s.Error,
		}
		a.recent = append(a.recent, rec)
		if len(a.recent) > recentErrorsKept {
			a.recent = a.recent[len(a.recent)-recentErrorsKept:]
		}
	}
}

// Health classifies current service health from the error rate and the
// average request duration. A service with no traffic is healthy.
func (a *Aggregator) Health() HealthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := HealthStatus{
		Status:        StatusHealthy,
		TotalRequests: a.total,
	}
	if a.total == 0 {
		return h
	}

	h.ErrorRate = round2(float64(a.errs) / float64(a.total) * 100)
	h.AvgDurationMs = round2(float64(a.totalDuration.Milliseconds()) / float64(a.total))

	switch {
	case h.ErrorRate > errorRateUnhealthy:
		h.Status = StatusUnhealthy
		h.Issues = append(h.Issues, "High error rate")
	case h.ErrorRate > errorRateDegraded:
		h.Status = StatusDegraded
		h.Issues = append(h.Issues, "Elevated error rate")
	}

	if h.AvgDurationMs > avgLatencyDegraded {
		h.Issues = append(h.Issues, "Slow response times")
		if h.Status == StatusHealthy {
			h.Status = StatusDegraded
		} else {
			h.Status = StatusUnhealthy
		}
	}

	return h
}

// Stats returns a copy of everything the aggregator holds.
func (a *Aggregator) Stats() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: int64(a.now().Sub(a.startedAt).Seconds()),
		Total:         a.total,
		Success:       a.success,
		Errors:        a.errs,
		MinDurationMs: float64(a.minDuration.Milliseconds()),
		MaxDurationMs: float64(a.maxDuration.Milliseconds()),
		ByStatus:      make(map[int]int64, len(a.byStatus)),
		ByEndpoint:    make(map[string]int64, len(a.byEndpoint)),
		TopShops:      a.topShopsLocked(),
		RecentErrors:  make([]ErrorRecord, 0, len(a.recent)),
	}

	if a.total > 0 {
		snap.ErrorRate = round2(float64(a.errs) / float64(a.total) * 100)
		snap.AvgDurationMs = round2(float64(a.totalDuration.Milliseconds()) / float64(a.total))
	}

	for code, n := range a.byStatus {
		snap.ByStatus[code] = n
	}
	for ep, n := range a.byEndpoint {
		snap.ByEndpoint[ep] = n
	}

	// Newest error first.
	for i := len(a.recent) - 1; i >= 0; i-- {
		snap.RecentErrors = append(snap.RecentErrors, a.recent[i])
	}

	return snap
}

// Reset clears all accumulated statistics and restarts the uptime clock.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.startedAt = a.now()
	a.total, a.success, a.errs = 0, 0, 0
	a.byStatus = make(map[int]int64)
	a.byShop = make(map[string]int64)
	a.byEndpoint = make(map[string]int64)
	a.totalDuration, a.minDuration, a.maxDuration = 0, 0, 0
	a.recent = nil
}

// topShopsLocked returns the busiest shops, capped at topShopsReported.
// Caller must hold a.mu.
func (a *Aggregator) topShopsLocked() []ShopCount {
	out := make([]ShopCount, 0, len(a.byShop))
	for shop, n := range a.byShop {
		out = append(out, ShopCount{Shop: shop, Count: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Shop < out[j].Shop
	})

	if len(out) > topShopsReported {
		out = out[:topShopsReported]
	}
	return out
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
