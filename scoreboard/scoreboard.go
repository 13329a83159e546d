// Package scoreboard maintains the contestant and admin ICPC standings.
//
// The contestant view only counts submissions made up to the contest's
// freeze time; the admin view counts everything. Both are updated
// incrementally as verdicts come in and can be rebuilt from the submission
// history at any time.
package scoreboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fushar/regrader"
)

// WrongAttemptPenalty is charged for every rejected submission before the accepted one.
const WrongAttemptPenalty = 20 // minutes

// TimePenalty is the number of started minutes between the contest start and submit.
func TimePenalty(submit, start time.Time) int {
	return int(math.Ceil(submit.Sub(start).Minutes()))
}

// Apply folds sub into entry. It reports false when the entry was already
// accepted, in which case nothing changes.
func Apply(entry *regrader.ScoreboardEntry, sub *regrader.Submission, contest *regrader.Contest) bool {
	if entry.IsAccepted {
		return false
	}
	entry.SubmissionCount++
	entry.TimePenalty = TimePenalty(sub.SubmitTime, contest.StartTime)
	if sub.Verdict == regrader.VerdictAccepted {
		entry.IsAccepted = true
	}
	return true
}

// Counts reports whether a submission takes part in the standings.
// Ignored submissions never do, and neither do ones that were not judged yet.
func Counts(sub *regrader.Submission) bool {
	return sub.Verdict != regrader.VerdictIgnored && sub.Verdict != regrader.VerdictPending
}

// AddSubmission records a freshly judged submission on both views.
func AddSubmission(ctx context.Context, st regrader.ScoreboardStore, sub *regrader.Submission) error {
	contest, err := st.Contest(ctx, sub.ContestID)
	if err != nil {
		return fmt.Errorf("couldn't get contest: %w", err)
	}
	return addSubmission(ctx, st, contest, sub)
}

func addSubmission(ctx context.Context, st regrader.ScoreboardStore, contest *regrader.Contest, sub *regrader.Submission) error {
	if contest.BeforeFreeze(sub.SubmitTime) {
		if err := addToView(ctx, st, regrader.ViewContestant, contest, sub); err != nil {
			return err
		}
	}
	return addToView(ctx, st, regrader.ViewAdmin, contest, sub)
}

func addToView(ctx context.Context, st regrader.ScoreboardStore, view regrader.ScoreboardView, contest *regrader.Contest, sub *regrader.Submission) error {
	entry, err := st.ScoreboardEntry(ctx, view, sub.ContestID, sub.UserID, sub.ProblemID)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &regrader.ScoreboardEntry{
			ContestID: sub.ContestID,
			UserID:    sub.UserID,
			ProblemID: sub.ProblemID,
		}
	}
	if !Apply(entry, sub, contest) {
		return nil
	}
	return st.UpsertScoreboardEntry(ctx, view, entry)
}

// Recalculate drops every entry in scope from both views and replays the
// scope's submissions in id order.
func Recalculate(ctx context.Context, st regrader.ScoreboardStore, scope regrader.ScoreboardScope) error {
	contest, err := st.Contest(ctx, scope.ContestID)
	if err != nil {
		return fmt.Errorf("couldn't get contest: %w", err)
	}
	for _, view := range regrader.ScoreboardViews {
		if err := st.DeleteScoreboardEntries(ctx, view, scope); err != nil {
			return err
		}
	}

	subs, err := st.Submissions(ctx, scope.SubmissionFilter())
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if !Counts(sub) {
			continue
		}
		if err := addSubmission(ctx, st, contest, sub); err != nil {
			return err
		}
	}
	return nil
}

// SubmissionScope is the narrowest scope affected by a change to sub.
func SubmissionScope(sub *regrader.Submission) regrader.ScoreboardScope {
	userID, problemID := sub.UserID, sub.ProblemID
	return regrader.ScoreboardScope{
		ContestID: sub.ContestID,
		UserID:    &userID,
		ProblemID: &problemID,
	}
}
