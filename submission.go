package regrader

import "time"

type Submission struct {
	ID         int       `json:"id"`
	UserID     int       `db:"user_id" json:"user_id"`
	ContestID  int       `db:"contest_id" json:"contest_id"`
	ProblemID  int       `db:"problem_id" json:"problem_id"`
	LanguageID int       `db:"language_id" json:"language_id"`
	SubmitTime time.Time `db:"submit_time" json:"submit_time"`

	StartJudgeTime *time.Time `db:"start_judge_time" json:"start_judge_time"`
	EndJudgeTime   *time.Time `db:"end_judge_time" json:"end_judge_time"`

	Verdict       Verdict       `json:"verdict"`
	PendingAction PendingAction `db:"pending_action" json:"pending_action"`

	ClaimedBy *string    `db:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`

	// FailedAttempts counts judgings aborted by infrastructure errors since
	// the last verdict or request. RetryAfter holds the submission back after one.
	FailedAttempts int        `db:"failed_attempts" json:"failed_attempts"`
	RetryAfter     *time.Time `db:"retry_after" json:"retry_after,omitempty"`
}

// Queued reports whether the submission is waiting for a grader.
func (s *Submission) Queued() bool {
	return s.Verdict == VerdictPending || s.PendingAction != ActionNone
}

// ClaimLive reports whether some grader holds an unexpired claim on the submission.
func (s *Submission) ClaimLive(now time.Time, ttl time.Duration) bool {
	if s.ClaimedBy == nil || s.ClaimedAt == nil {
		return false
	}
	return s.ClaimedAt.Add(ttl).After(now)
}

// Claimable reports whether a grader may take the submission at now. A
// submission that failed maxAttempts times stays parked until a new request
// comes in. A non-positive maxAttempts never parks.
func (s *Submission) Claimable(now time.Time, ttl time.Duration, maxAttempts int) bool {
	if !s.Queued() || s.ClaimLive(now, ttl) {
		return false
	}
	if s.RetryAfter != nil && s.RetryAfter.After(now) {
		return false
	}
	return maxAttempts <= 0 || s.FailedAttempts < maxAttempts
}

type SubmissionUpdate struct {
	Verdict       *Verdict
	PendingAction *PendingAction
	// ClearAction resets pending_action only if it still holds this value,
	// so a request made while judging survives the final update.
	ClearAction *PendingAction

	StartJudgeTime *time.Time
	EndJudgeTime   *time.Time

	// ReleaseClaim clears claimed_by and claimed_at.
	ReleaseClaim bool
	// ResetAttempts clears failed_attempts and retry_after.
	ResetAttempts bool
}

type SubmissionFilter struct {
	ID        *int `json:"id"`
	UserID    *int `json:"user_id"`
	ContestID *int `json:"contest_id"`
	ProblemID *int `json:"problem_id"`

	Verdict *Verdict `json:"verdict"`

	Ascending bool `json:"ascending"`

	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Judging is the result of running a submission against one testcase.
type Judging struct {
	SubmissionID int `db:"submission_id" json:"submission_id"`
	TestcaseID   int `db:"testcase_id" json:"testcase_id"`

	// milliseconds
	Time int `json:"time"`
	// kilobytes
	Memory int `json:"memory"`

	Verdict Verdict `json:"verdict"`
}
