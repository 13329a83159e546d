package regrader

import "time"

type Contest struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	StartTime    time.Time `db:"start_time" json:"start_time"`
	EndTime      time.Time `db:"end_time" json:"end_time"`
	FreezeTime   time.Time `db:"freeze_time" json:"freeze_time"`
	UnfreezeTime time.Time `db:"unfreeze_time" json:"unfreeze_time"`
}

// BeforeFreeze reports whether a submission made at t counts on the contestant scoreboard.
func (c *Contest) BeforeFreeze(t time.Time) bool {
	return !t.After(c.FreezeTime)
}

// Unfrozen reports whether the contestant scoreboard has been revealed at now.
func (c *Contest) Unfrozen(now time.Time) bool {
	return now.After(c.UnfreezeTime)
}

type ContestProblem struct {
	ContestID int    `db:"contest_id" json:"contest_id"`
	ProblemID int    `db:"problem_id" json:"problem_id"`
	Alias     string `json:"alias"`
	Name      string `json:"name"`
}
