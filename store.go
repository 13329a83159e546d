package regrader

import (
	"context"
	"time"
)

// ScoreboardStore is what the scoreboard engine reads and writes.
// Lookups of single records return ErrNotFound when the record is missing.
type ScoreboardStore interface {
	Contest(ctx context.Context, id int) (*Contest, error)
	ContestMembers(ctx context.Context, contestID int) ([]*User, error)
	// ContestProblems is ordered by alias.
	ContestProblems(ctx context.Context, contestID int) ([]*ContestProblem, error)

	Submission(ctx context.Context, id int) (*Submission, error)
	Submissions(ctx context.Context, filter SubmissionFilter) ([]*Submission, error)

	// ScoreboardEntry returns nil, nil if there is no entry.
	ScoreboardEntry(ctx context.Context, view ScoreboardView, contestID, userID, problemID int) (*ScoreboardEntry, error)
	ScoreboardEntries(ctx context.Context, view ScoreboardView, contestID int) ([]*ScoreboardEntry, error)
	UpsertScoreboardEntry(ctx context.Context, view ScoreboardView, entry *ScoreboardEntry) error
	DeleteScoreboardEntries(ctx context.Context, view ScoreboardView, scope ScoreboardScope) error
}

// JudgeTx is everything a grader touches while judging one submission.
// All of it happens inside a single transaction.
type JudgeTx interface {
	ScoreboardStore

	UpdateSubmission(ctx context.Context, id int, upd SubmissionUpdate) error

	Language(ctx context.Context, id int) (*Language, error)
	User(ctx context.Context, id int) (*User, error)
	Problem(ctx context.Context, id int) (*Problem, error)
	ContestProblem(ctx context.Context, contestID, problemID int) (*ContestProblem, error)
	// Testcases is ordered by id.
	Testcases(ctx context.Context, problemID int) ([]*Testcase, error)
	// ProblemChecker returns nil, nil if the problem has no checker.
	ProblemChecker(ctx context.Context, problemID int) (*Checker, error)

	InsertJudging(ctx context.Context, j *Judging) error
	DeleteJudgings(ctx context.Context, submissionID int) error
	Judgings(ctx context.Context, submissionID int) ([]*Judging, error)
}

type Store interface {
	JudgeTx

	// InTx runs fn in a transaction, committing if it returns nil.
	InTx(ctx context.Context, fn func(JudgeTx) error) error

	// ClaimSubmission atomically takes the oldest claimable submission (see
	// Submission.Claimable). It returns nil, nil when there is none.
	ClaimSubmission(ctx context.Context, workerID string, now time.Time, ttl time.Duration, maxAttempts int) (*Submission, error)
	// FailClaim releases a claim after an aborted judging, counts the failure
	// and holds the submission back until retryAt.
	FailClaim(ctx context.Context, submissionID int, workerID string, retryAt time.Time) error

	// RequestAction sets the pending action of a submission unless a grader
	// holds a live claim on it, in which case it returns ErrSubmissionClaimed.
	// The check and the write are a single atomic step.
	RequestAction(ctx context.Context, submissionID int, action PendingAction, now time.Time, ttl time.Duration) error

	CheckIn(ctx context.Context, hb *GraderHeartbeat) error
	ActiveGraders(ctx context.Context, now time.Time) ([]*GraderHeartbeat, error)
}
