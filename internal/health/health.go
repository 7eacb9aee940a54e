package health

// Status classifies system load from queue pressure.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Usage at or above this fraction of capacity means the backlog is high.
const degradedUsage = 0.75

// QueueStats is the read-only view of the queue the monitor samples. Both
// accessors are lock-free on the queue side, so probes stay cheap.
type QueueStats interface {
	Depth() int
	Capacity() int
}

// Report carries the classification plus the raw numbers so operators can
// see what produced it.
type Report struct {
	Status   Status  `json:"status"`
	Reason   string  `json:"reason,omitempty"`
	Depth    int     `json:"depth"`
	Capacity int     `json:"capacity"`
	Usage    float64 `json:"usage"`
}

// Monitor observes the ingestion queue for readiness probes. Check never
// blocks and never mutates state, so it is safe to call on every probe.
type Monitor struct {
	queue QueueStats
}

// NewMonitor creates a monitor over the given queue.
func NewMonitor(q QueueStats) *Monitor {
	return &Monitor{queue: q}
}

// Check samples depth and capacity and classifies the load.
func (m *Monitor) Check() Report {
	depth := m.queue.Depth()
	capacity := m.queue.Capacity()
	return Classify(depth, capacity)
}

// Classify computes usage = depth/capacity (capacity floored at 1) and maps
// it onto the health statuses. Boundaries are inclusive: exactly 0.75 is
// degraded, exactly 1.0 is unhealthy.
func Classify(depth, capacity int) Report {
	if capacity < 1 {
		capacity = 1
	}
	usage := float64(depth) / float64(capacity)

	report := Report{
		Status:   StatusHealthy,
		Depth:    depth,
		Capacity: capacity,
		Usage:    usage,
	}
	switch {
	case usage >= 1.0:
		report.Status = StatusUnhealthy
		report.Reason = "queue is full"
	case usage >= degradedUsage:
		report.Status = StatusDegraded
		report.Reason = "backlog is high"
	}
	return report
}
