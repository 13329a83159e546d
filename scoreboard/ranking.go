package scoreboard

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fushar/regrader"
)

// Scores renders the standings of a contest. Once the contest is unfrozen the
// contestant view is served from the admin view.
func Scores(ctx context.Context, st regrader.ScoreboardStore, contestID int, view regrader.ScoreboardView, now time.Time) (*regrader.Scoreboard, error) {
	if !view.Valid() {
		return nil, regrader.Statusf(400, "Invalid scoreboard view %q", view)
	}
	contest, err := st.Contest(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("couldn't get contest: %w", err)
	}
	if view == regrader.ViewContestant && contest.Unfrozen(now) {
		view = regrader.ViewAdmin
	}

	members, err := st.ContestMembers(ctx, contestID)
	if err != nil {
		return nil, err
	}
	problems, err := st.ContestProblems(ctx, contestID)
	if err != nil {
		return nil, err
	}
	entries, err := st.ScoreboardEntries(ctx, view, contestID)
	if err != nil {
		return nil, err
	}

	problemIdx := make(map[int]int, len(problems))
	for i, pb := range problems {
		problemIdx[pb.ProblemID] = i
	}

	rows := make([]*regrader.ScoreboardRow, 0, len(members))
	rowByUser := make(map[int]*regrader.ScoreboardRow, len(members))
	for _, user := range members {
		row := &regrader.ScoreboardRow{
			UserID:      user.ID,
			Name:        user.Name,
			Username:    user.Username,
			Institution: user.Institution,
			Scores:      make([]regrader.ProblemScore, len(problems)),
		}
		for i, pb := range problems {
			row.Scores[i] = regrader.ProblemScore{ProblemID: pb.ProblemID, Alias: pb.Alias}
		}
		rows = append(rows, row)
		rowByUser[user.ID] = row
	}

	for _, entry := range entries {
		row, ok := rowByUser[entry.UserID]
		if !ok {
			continue
		}
		idx, ok := problemIdx[entry.ProblemID]
		if !ok {
			continue
		}
		score := &row.Scores[idx]
		score.SubmissionCount = entry.SubmissionCount
		score.TimePenalty = entry.TimePenalty
		score.IsAccepted = entry.IsAccepted

		if entry.IsAccepted {
			row.TotalAccepted++
			row.TotalPenalty += entry.TimePenalty + WrongAttemptPenalty*(entry.SubmissionCount-1)
			row.LastSubmission = max(row.LastSubmission, entry.TimePenalty)
		}
	}

	SortRows(rows)

	return &regrader.Scoreboard{
		ContestID: contestID,
		View:      view,
		Problems:  problems,
		Rows:      rows,
	}, nil
}

// SortRows orders rows by solved count, penalty, last accepted time and name.
func SortRows(rows []*regrader.ScoreboardRow) {
	slices.SortStableFunc(rows, func(a, b *regrader.ScoreboardRow) int {
		return cmp.Or(
			cmp.Compare(b.TotalAccepted, a.TotalAccepted),
			cmp.Compare(a.TotalPenalty, b.TotalPenalty),
			cmp.Compare(a.LastSubmission, b.LastSubmission),
			cmp.Compare(a.Name, b.Name),
		)
	})
}
