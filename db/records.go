package db

import (
	"context"
	"errors"

	"github.com/fushar/regrader"
	"github.com/jackc/pgx/v5"
)

const (
	languageColumns = "id, name, source_name, exe_name, compile_cmd, run_cmd, limit_memory, limit_syscall, forbidden_keywords"
	userColumns     = "id, name, username, institution, category_id"
	contestColumns  = "id, name, start_time, end_time, freeze_time, unfreeze_time"
	problemColumns  = "id, name, time_limit, memory_limit"
)

func (s *queries) Language(ctx context.Context, id int) (*regrader.Language, error) {
	rows, _ := s.conn.Query(ctx, "SELECT "+languageColumns+" FROM languages WHERE id = $1", id)
	return collectOne[regrader.Language](rows, "Language")
}

func (s *queries) User(ctx context.Context, id int) (*regrader.User, error) {
	rows, _ := s.conn.Query(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return collectOne[regrader.User](rows, "User")
}

func (s *queries) Contest(ctx context.Context, id int) (*regrader.Contest, error) {
	rows, _ := s.conn.Query(ctx, "SELECT "+contestColumns+" FROM contests WHERE id = $1", id)
	return collectOne[regrader.Contest](rows, "Contest")
}

func (s *queries) Problem(ctx context.Context, id int) (*regrader.Problem, error) {
	rows, _ := s.conn.Query(ctx, "SELECT "+problemColumns+" FROM problems WHERE id = $1", id)
	return collectOne[regrader.Problem](rows, "Problem")
}

func (s *queries) ContestMembers(ctx context.Context, contestID int) ([]*regrader.User, error) {
	rows, _ := s.conn.Query(ctx, `
	SELECT u.id, u.name, u.username, u.institution, u.category_id
		FROM users u
		INNER JOIN contest_members cm ON cm.category_id = u.category_id
	WHERE cm.contest_id = $1
	ORDER BY u.id`, contestID)
	return collectAll[regrader.User](rows)
}

func (s *queries) ContestProblems(ctx context.Context, contestID int) ([]*regrader.ContestProblem, error) {
	rows, _ := s.conn.Query(ctx, `
	SELECT cp.contest_id, cp.problem_id, cp.alias, p.name
		FROM contest_problems cp
		INNER JOIN problems p ON p.id = cp.problem_id
	WHERE cp.contest_id = $1
	ORDER BY cp.alias`, contestID)
	return collectAll[regrader.ContestProblem](rows)
}

func (s *queries) ContestProblem(ctx context.Context, contestID, problemID int) (*regrader.ContestProblem, error) {
	rows, _ := s.conn.Query(ctx, `
	SELECT cp.contest_id, cp.problem_id, cp.alias, p.name
		FROM contest_problems cp
		INNER JOIN problems p ON p.id = cp.problem_id
	WHERE cp.contest_id = $1 AND cp.problem_id = $2`, contestID, problemID)
	return collectOne[regrader.ContestProblem](rows, "Contest problem")
}

func (s *queries) Testcases(ctx context.Context, problemID int) ([]*regrader.Testcase, error) {
	rows, _ := s.conn.Query(ctx, "SELECT id, problem_id, input, output, input_size, output_size FROM testcases WHERE problem_id = $1 ORDER BY id", problemID)
	return collectAll[regrader.Testcase](rows)
}

func (s *queries) ProblemChecker(ctx context.Context, problemID int) (*regrader.Checker, error) {
	rows, _ := s.conn.Query(ctx, "SELECT id, problem_id, checker FROM checkers WHERE problem_id = $1 LIMIT 1", problemID)
	checker, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[regrader.Checker])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return checker, err
}
