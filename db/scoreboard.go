package db

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/fushar/regrader"
	"github.com/jackc/pgx/v5"
)

const entryColumns = "contest_id, user_id, problem_id, submission_cnt, time_penalty, is_accepted"

func scoreboardTable(view regrader.ScoreboardView) (string, error) {
	if !view.Valid() {
		return "", regrader.Statusf(400, "Invalid scoreboard view %q", view)
	}
	return "scoreboard_" + string(view), nil
}

func (s *queries) ScoreboardEntry(ctx context.Context, view regrader.ScoreboardView, contestID, userID, problemID int) (*regrader.ScoreboardEntry, error) {
	table, err := scoreboardTable(view)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, sq.Select(entryColumns).From(table).Where(sq.Eq{
		"contest_id": contestID,
		"user_id":    userID,
		"problem_id": problemID,
	}))
	if err != nil {
		return nil, err
	}
	entry, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[regrader.ScoreboardEntry])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (s *queries) ScoreboardEntries(ctx context.Context, view regrader.ScoreboardView, contestID int) ([]*regrader.ScoreboardEntry, error) {
	table, err := scoreboardTable(view)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, sq.Select(entryColumns).From(table).
		Where(sq.Eq{"contest_id": contestID}).
		OrderBy("user_id", "problem_id"))
	if err != nil {
		return nil, err
	}
	return collectAll[regrader.ScoreboardEntry](rows)
}

func (s *queries) UpsertScoreboardEntry(ctx context.Context, view regrader.ScoreboardView, entry *regrader.ScoreboardEntry) error {
	table, err := scoreboardTable(view)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, sq.Insert(table).
		Columns("contest_id", "user_id", "problem_id", "submission_cnt", "time_penalty", "is_accepted").
		Values(entry.ContestID, entry.UserID, entry.ProblemID, entry.SubmissionCount, entry.TimePenalty, entry.IsAccepted).
		Suffix(`ON CONFLICT (contest_id, user_id, problem_id) DO UPDATE SET
			submission_cnt = EXCLUDED.submission_cnt,
			time_penalty = EXCLUDED.time_penalty,
			is_accepted = EXCLUDED.is_accepted`))
	return err
}

func (s *queries) DeleteScoreboardEntries(ctx context.Context, view regrader.ScoreboardView, scope regrader.ScoreboardScope) error {
	table, err := scoreboardTable(view)
	if err != nil {
		return err
	}
	query := sq.Delete(table).Where(sq.Eq{"contest_id": scope.ContestID})
	if v := scope.UserID; v != nil {
		query = query.Where(sq.Eq{"user_id": *v})
	}
	if v := scope.ProblemID; v != nil {
		query = query.Where(sq.Eq{"problem_id": *v})
	}
	_, err = s.exec(ctx, query)
	return err
}
