package db

import (
	"context"
	"time"

	"github.com/fushar/regrader"
)

func (d *DB) CheckIn(ctx context.Context, hb *regrader.GraderHeartbeat) error {
	_, err := d.pool.Exec(ctx, `
	INSERT INTO graders (worker_id, hostname, last_activity, lease_until) VALUES ($1, $2, $3, $4)
		ON CONFLICT (worker_id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			last_activity = EXCLUDED.last_activity,
			lease_until = EXCLUDED.lease_until`,
		hb.WorkerID, hb.Hostname, hb.LastActivity, hb.LeaseUntil,
	)
	return err
}

func (d *DB) ActiveGraders(ctx context.Context, now time.Time) ([]*regrader.GraderHeartbeat, error) {
	rows, _ := d.pool.Query(ctx, "SELECT worker_id, hostname, last_activity, lease_until FROM graders WHERE lease_until >= $1 ORDER BY hostname, worker_id", now)
	return collectAll[regrader.GraderHeartbeat](rows)
}
