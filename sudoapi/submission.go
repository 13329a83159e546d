package sudoapi

import (
	"context"
	"log/slog"

	"github.com/fushar/regrader"
)

func (s *BaseAPI) Submission(ctx context.Context, id int) (*regrader.Submission, error) {
	sub, err := s.store.Submission(ctx, id)
	if err != nil {
		if regrader.ErrorCode(err) == 404 {
			return nil, err
		}
		return nil, regrader.WrapStatus(err, 500, "Couldn't get submission")
	}
	return sub, nil
}

// RequestRegrade queues a submission to be judged again.
func (s *BaseAPI) RequestRegrade(ctx context.Context, id int) error {
	return s.requestAction(ctx, id, regrader.ActionRegrade)
}

// RequestIgnore queues a submission to be dropped from the standings.
func (s *BaseAPI) RequestIgnore(ctx context.Context, id int) error {
	return s.requestAction(ctx, id, regrader.ActionIgnore)
}

// requestAction refuses to touch a submission some grader is judging right now.
func (s *BaseAPI) requestAction(ctx context.Context, id int, action regrader.PendingAction) error {
	err := s.store.RequestAction(ctx, id, action, s.now(), s.leaseTTL)
	if err != nil {
		if code := regrader.ErrorCode(err); code == 404 || code == 409 {
			return err
		}
		return regrader.WrapStatus(err, 500, "Couldn't update submission")
	}

	slog.InfoContext(ctx, "Submission action requested", slog.Int("submission_id", id), slog.String("action", string(action)))
	s.wakeGrader()
	return nil
}

// Judgings returns the per-testcase results of a submission.
func (s *BaseAPI) Judgings(ctx context.Context, id int) ([]*regrader.Judging, error) {
	if _, err := s.Submission(ctx, id); err != nil {
		return nil, err
	}
	judgings, err := s.store.Judgings(ctx, id)
	if err != nil {
		return nil, regrader.WrapStatus(err, 500, "Couldn't get judgings")
	}
	return judgings, nil
}

// CompileOutput returns what the compiler printed for a submission.
func (s *BaseAPI) CompileOutput(ctx context.Context, id int) (string, error) {
	if _, err := s.Submission(ctx, id); err != nil {
		return "", err
	}
	out, err := s.mgr.CompileOutput(id)
	if err != nil {
		return "", regrader.WrapStatus(err, 404, "Compile output not found")
	}
	return string(out), nil
}
