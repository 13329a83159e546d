package db

import (
	"context"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fushar/regrader"
)

const submissionColumns = "id, user_id, contest_id, problem_id, language_id, submit_time, start_judge_time, end_judge_time, verdict, pending_action, claimed_by, claimed_at, failed_attempts, retry_after"

func (s *queries) Submission(ctx context.Context, id int) (*regrader.Submission, error) {
	rows, _ := s.conn.Query(ctx, "SELECT "+submissionColumns+" FROM submissions WHERE id = $1", id)
	return collectOne[regrader.Submission](rows, "Submission")
}

func (s *queries) Submissions(ctx context.Context, filter regrader.SubmissionFilter) ([]*regrader.Submission, error) {
	query := sq.Select(submissionColumns).From("submissions")
	if v := filter.ID; v != nil {
		query = query.Where(sq.Eq{"id": *v})
	}
	if v := filter.UserID; v != nil {
		query = query.Where(sq.Eq{"user_id": *v})
	}
	if v := filter.ContestID; v != nil {
		query = query.Where(sq.Eq{"contest_id": *v})
	}
	if v := filter.ProblemID; v != nil {
		query = query.Where(sq.Eq{"problem_id": *v})
	}
	if v := filter.Verdict; v != nil {
		query = query.Where(sq.Eq{"verdict": *v})
	}
	if filter.Ascending {
		query = query.OrderBy("id ASC")
	} else {
		query = query.OrderBy("id DESC")
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectAll[regrader.Submission](rows)
}

func (s *queries) UpdateSubmission(ctx context.Context, id int, upd regrader.SubmissionUpdate) error {
	query := sq.Update("submissions").Where(sq.Eq{"id": id})
	changed := false
	if v := upd.Verdict; v != nil {
		query = query.Set("verdict", *v)
		changed = true
	}
	if v := upd.PendingAction; v != nil {
		query = query.Set("pending_action", *v)
		changed = true
	}
	if v := upd.ClearAction; v != nil {
		query = query.Set("pending_action", sq.Expr("CASE WHEN pending_action = ? THEN '' ELSE pending_action END", *v))
		changed = true
	}
	if v := upd.StartJudgeTime; v != nil {
		query = query.Set("start_judge_time", *v)
		changed = true
	}
	if v := upd.EndJudgeTime; v != nil {
		query = query.Set("end_judge_time", *v)
		changed = true
	}
	if upd.ReleaseClaim {
		query = query.Set("claimed_by", nil).Set("claimed_at", nil)
		changed = true
	}
	if upd.ResetAttempts {
		query = query.Set("failed_attempts", 0).Set("retry_after", nil)
		changed = true
	}
	if !changed {
		return regrader.ErrNoUpdates
	}
	tag, err := s.exec(ctx, query)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return regrader.ErrNotFound
	}
	return nil
}

// ClaimSubmission takes the oldest claimable submission.
// SKIP LOCKED keeps concurrent graders from waiting on each other's pick.
func (d *DB) ClaimSubmission(ctx context.Context, workerID string, now time.Time, ttl time.Duration, maxAttempts int) (*regrader.Submission, error) {
	if maxAttempts <= 0 {
		maxAttempts = math.MaxInt32
	}
	rows, _ := d.pool.Query(ctx, `
	UPDATE submissions SET claimed_by = $1, claimed_at = $2
	WHERE id = (
		SELECT id FROM submissions
		WHERE (verdict = 0 OR pending_action <> '')
			AND (claimed_by IS NULL OR claimed_at < $3)
			AND (retry_after IS NULL OR retry_after <= $2)
			AND failed_attempts < $4
		ORDER BY id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING `+submissionColumns, workerID, now, now.Add(-ttl), maxAttempts)
	sub, err := collectOne[regrader.Submission](rows, "Submission")
	if err != nil {
		if regrader.ErrorCode(err) == 404 {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func (d *DB) FailClaim(ctx context.Context, submissionID int, workerID string, retryAt time.Time) error {
	_, err := d.pool.Exec(ctx, `
	UPDATE submissions SET
		claimed_by = NULL, claimed_at = NULL,
		failed_attempts = failed_attempts + 1, retry_after = $3
	WHERE id = $1 AND claimed_by = $2`, submissionID, workerID, retryAt)
	return err
}

// RequestAction checks the claim in the same statement that writes the
// action. A judging transaction holding the row makes it wait for the commit.
func (d *DB) RequestAction(ctx context.Context, submissionID int, action regrader.PendingAction, now time.Time, ttl time.Duration) error {
	tag, err := d.pool.Exec(ctx, `
	UPDATE submissions SET pending_action = $2, failed_attempts = 0, retry_after = NULL
	WHERE id = $1 AND (claimed_by IS NULL OR claimed_at < $3)`, submissionID, action, now.Add(-ttl))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := d.Submission(ctx, submissionID); err != nil {
		return err
	}
	return regrader.ErrSubmissionClaimed
}

func (s *queries) InsertJudging(ctx context.Context, j *regrader.Judging) error {
	_, err := s.conn.Exec(ctx,
		"INSERT INTO judgings (submission_id, testcase_id, time, memory, verdict) VALUES ($1, $2, $3, $4, $5)",
		j.SubmissionID, j.TestcaseID, j.Time, j.Memory, j.Verdict,
	)
	return err
}

func (s *queries) DeleteJudgings(ctx context.Context, submissionID int) error {
	_, err := s.conn.Exec(ctx, "DELETE FROM judgings WHERE submission_id = $1", submissionID)
	return err
}

func (s *queries) Judgings(ctx context.Context, submissionID int) ([]*regrader.Judging, error) {
	rows, _ := s.conn.Query(ctx, "SELECT submission_id, testcase_id, time, memory, verdict FROM judgings WHERE submission_id = $1 ORDER BY testcase_id", submissionID)
	return collectAll[regrader.Judging](rows)
}
