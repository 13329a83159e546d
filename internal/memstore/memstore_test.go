package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fushar/regrader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	st := New()
	first := st.AddSubmission(&regrader.Submission{SubmitTime: now})
	second := st.AddSubmission(&regrader.Submission{SubmitTime: now})
	st.AddSubmission(&regrader.Submission{SubmitTime: now, Verdict: regrader.VerdictAccepted})

	a, err := st.ClaimSubmission(ctx, "worker-a", now, 30*time.Second, 0)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, first, a.ID)

	b, err := st.ClaimSubmission(ctx, "worker-b", now, 30*time.Second, 0)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, second, b.ID)

	// judged submissions are not queued
	c, err := st.ClaimSubmission(ctx, "worker-c", now, 30*time.Second, 0)
	require.NoError(t, err)
	assert.Nil(t, c)

	// only the owner may hand it back
	require.NoError(t, st.FailClaim(ctx, first, "worker-b", now))
	sub, err := st.Submission(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, sub.ClaimedBy)
	assert.Equal(t, "worker-a", *sub.ClaimedBy)

	require.NoError(t, st.FailClaim(ctx, first, "worker-a", now))
	c, err = st.ClaimSubmission(ctx, "worker-c", now, 30*time.Second, 0)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, first, c.ID)
}

func TestExpiredClaimIsReclaimed(t *testing.T) {
	ctx := context.Background()
	st := New()
	id := st.AddSubmission(&regrader.Submission{SubmitTime: now})

	_, err := st.ClaimSubmission(ctx, "crashed", now, 30*time.Second, 0)
	require.NoError(t, err)

	sub, err := st.ClaimSubmission(ctx, "fresh", now.Add(31*time.Second), 30*time.Second, 0)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, "fresh", *sub.ClaimedBy)
}

func TestFailedClaimBacksOff(t *testing.T) {
	ctx := context.Background()
	st := New()
	broken := st.AddSubmission(&regrader.Submission{SubmitTime: now})
	good := st.AddSubmission(&regrader.Submission{SubmitTime: now.Add(time.Second)})

	sub, err := st.ClaimSubmission(ctx, "w", now, 30*time.Second, 2)
	require.NoError(t, err)
	require.Equal(t, broken, sub.ID)
	require.NoError(t, st.FailClaim(ctx, broken, "w", now.Add(time.Minute)))

	sub, err = st.ClaimSubmission(ctx, "w", now, 30*time.Second, 2)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, good, sub.ID, "a failed submission must not stay at the head of the queue")

	later := now.Add(time.Minute)
	sub, err = st.ClaimSubmission(ctx, "w", later, 30*time.Second, 2)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, broken, sub.ID)
	require.NoError(t, st.FailClaim(ctx, broken, "w", later))

	// out of attempts
	sub, err = st.ClaimSubmission(ctx, "w", later.Add(time.Hour), 30*time.Second, 2)
	require.NoError(t, err)
	assert.Nil(t, sub)

	require.NoError(t, st.RequestAction(ctx, broken, regrader.ActionRegrade, later, 30*time.Second))
	got, err := st.Submission(ctx, broken)
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.RetryAfter)

	sub, err = st.ClaimSubmission(ctx, "w", later, 30*time.Second, 2)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, broken, sub.ID)
}

func TestRequestAction(t *testing.T) {
	ctx := context.Background()
	st := New()
	id := st.AddSubmission(&regrader.Submission{SubmitTime: now, Verdict: regrader.VerdictAccepted})

	assert.ErrorIs(t, st.RequestAction(ctx, id+1, regrader.ActionRegrade, now, 30*time.Second), regrader.ErrNotFound)

	require.NoError(t, st.RequestAction(ctx, id, regrader.ActionRegrade, now, 30*time.Second))
	_, err := st.ClaimSubmission(ctx, "w", now, 30*time.Second, 0)
	require.NoError(t, err)

	err = st.RequestAction(ctx, id, regrader.ActionIgnore, now.Add(10*time.Second), 30*time.Second)
	assert.ErrorIs(t, err, regrader.ErrSubmissionClaimed)

	// a request that lands mid-judging outlives the finalize of the old action
	regrade := regrader.ActionRegrade
	ignore := regrader.ActionIgnore
	require.NoError(t, st.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{PendingAction: &ignore}))
	require.NoError(t, st.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{ClearAction: &regrade, ReleaseClaim: true}))
	sub, err := st.Submission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, regrader.ActionIgnore, sub.PendingAction)
	assert.Nil(t, sub.ClaimedBy)

	require.NoError(t, st.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{ClearAction: &ignore}))
	sub, err = st.Submission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, regrader.ActionNone, sub.PendingAction)
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	st := New()
	id := st.AddSubmission(&regrader.Submission{SubmitTime: now})

	err := st.InTx(ctx, func(tx regrader.JudgeTx) error {
		v := regrader.VerdictWrongAnswer
		require.NoError(t, tx.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{Verdict: &v}))
		require.NoError(t, tx.InsertJudging(ctx, &regrader.Judging{SubmissionID: id, TestcaseID: 1, Verdict: v}))
		require.NoError(t, tx.UpsertScoreboardEntry(ctx, regrader.ViewAdmin, &regrader.ScoreboardEntry{ContestID: 1, UserID: 1, ProblemID: 1, SubmissionCount: 1}))
		return errors.New("sandbox went away")
	})
	require.Error(t, err)

	sub, err := st.Submission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, regrader.VerdictPending, sub.Verdict)
	judgings, err := st.Judgings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, judgings)
	entry, err := st.ScoreboardEntry(ctx, regrader.ViewAdmin, 1, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, st.InTx(ctx, func(tx regrader.JudgeTx) error {
		v := regrader.VerdictAccepted
		return tx.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{Verdict: &v})
	}))
	sub, err = st.Submission(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, regrader.VerdictAccepted, sub.Verdict)
}

func TestScoreboardScopeDelete(t *testing.T) {
	ctx := context.Background()
	st := New()
	for _, e := range []regrader.ScoreboardEntry{
		{ContestID: 1, UserID: 1, ProblemID: 1},
		{ContestID: 1, UserID: 1, ProblemID: 2},
		{ContestID: 1, UserID: 2, ProblemID: 1},
		{ContestID: 2, UserID: 1, ProblemID: 1},
	} {
		require.NoError(t, st.UpsertScoreboardEntry(ctx, regrader.ViewAdmin, &e))
	}

	user := 1
	require.NoError(t, st.DeleteScoreboardEntries(ctx, regrader.ViewAdmin, regrader.ScoreboardScope{ContestID: 1, UserID: &user}))

	left, err := st.ScoreboardEntries(ctx, regrader.ViewAdmin, 1)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 2, left[0].UserID)

	other, err := st.ScoreboardEntries(ctx, regrader.ViewAdmin, 2)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	assert.Error(t, st.UpsertScoreboardEntry(ctx, "public", &regrader.ScoreboardEntry{ContestID: 1}))
}
