package sudoapi

import (
	"context"
	"io"
	"log/slog"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/scoreboard"
)

func (s *BaseAPI) ContestScoreboard(ctx context.Context, contestID int, view regrader.ScoreboardView) (*regrader.Scoreboard, error) {
	sb, err := scoreboard.Scores(ctx, s.store, contestID, view, s.now())
	if err != nil {
		if code := regrader.ErrorCode(err); code == 400 || code == 404 {
			return nil, err
		}
		return nil, regrader.WrapStatus(err, 500, "Couldn't build scoreboard")
	}
	return sb, nil
}

// ExportScoreboard writes the scoreboard as CSV.
func (s *BaseAPI) ExportScoreboard(ctx context.Context, w io.Writer, contestID int, view regrader.ScoreboardView) error {
	sb, err := s.ContestScoreboard(ctx, contestID, view)
	if err != nil {
		return err
	}
	if err := scoreboard.WriteCSV(w, sb); err != nil {
		return regrader.WrapStatus(err, 500, "Couldn't write scoreboard")
	}
	return nil
}

// RecalculateScoreboard rebuilds both views for the scope from scratch.
func (s *BaseAPI) RecalculateScoreboard(ctx context.Context, scope regrader.ScoreboardScope) error {
	err := s.store.InTx(ctx, func(tx regrader.JudgeTx) error {
		return scoreboard.Recalculate(ctx, tx, scope)
	})
	if err != nil {
		if regrader.ErrorCode(err) == 404 {
			return err
		}
		return regrader.WrapStatus(err, 500, "Couldn't recalculate scoreboard")
	}
	slog.InfoContext(ctx, "Scoreboard recalculated", slog.Any("scope", scope))
	return nil
}
