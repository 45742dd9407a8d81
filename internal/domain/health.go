package domain

import "time"

// Dependency states, from best to worst. A degraded dependency is optional and
// failing; the API still serves orders without it.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

var healthRank = map[string]int{
	HealthStatusOK:       0,
	"":                   0,
	HealthStatusDegraded: 1,
	HealthStatusError:    2,
}

// WorstHealth folds statuses into the most severe one. Unknown values count as
// degraded; no statuses is ok.
func WorstHealth(statuses ...string) string {
	worst, rank := HealthStatusOK, 0
	for _, status := range statuses {
		r, known := healthRank[status]
		if !known {
			r, status = 1, HealthStatusDegraded
		}
		if r > rank {
			worst, rank = status, r
		}
	}
	return worst
}

// SystemHealthCheck is one probe result on /readyz.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CheckStatuses lists the status of every check, in no particular order.
func (r SystemHealthReport) CheckStatuses() []string {
	out := make([]string, 0, len(r.Checks))
	for _, check := range r.Checks {
		out = append(out, check.Status)
	}
	return out
}
