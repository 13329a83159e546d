package regrader

import "time"

// GraderHeartbeat is the liveness lease of one grader process.
type GraderHeartbeat struct {
	WorkerID     string    `db:"worker_id" json:"worker_id"`
	Hostname     string    `json:"hostname"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
	LeaseUntil   time.Time `db:"lease_until" json:"lease_until"`
}

func (h *GraderHeartbeat) Alive(now time.Time) bool {
	return !h.LeaseUntil.Before(now)
}
