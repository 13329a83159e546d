package grader

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/datastore"
	"github.com/fushar/regrader/eval"
	"github.com/fushar/regrader/internal/config"
	"github.com/fushar/regrader/internal/memstore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contestStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return contestStart.Add(time.Duration(minutes) * time.Minute)
}

var cppLang = &regrader.Language{
	ID:                1,
	Name:              "C++",
	SourceName:        "sol.cpp",
	ExeName:           "sol",
	CompileCommand:    "g++ -O2 -o [PATH]/sol [PATH]/sol.cpp",
	RunCommand:        "[PATH]/sol",
	LimitMemory:       true,
	LimitSyscall:      true,
	ForbiddenKeywords: "fork",
}

type fakeRunner struct {
	out      string
	exitCode int
	calls    int
}

func (r *fakeRunner) Run(_ context.Context, _ string, _ []string) ([]byte, int, error) {
	r.calls++
	return []byte(r.out), r.exitCode, nil
}

// fakeSandbox prints output for every run, whatever the input.
type fakeSandbox struct {
	fs     afero.Fs
	output string
	stats  *eval.RunStats
	err    error
	calls  int
	// onRun is called before every run with the 1-based call number.
	onRun func(call int)
}

func (s *fakeSandbox) RunCommand(_ context.Context, _ []string, conf *eval.RunConfig) (*eval.RunStats, error) {
	s.calls++
	if s.onRun != nil {
		s.onRun(s.calls)
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := afero.WriteFile(s.fs, conf.OutputPath, []byte(s.output), 0644); err != nil {
		return nil, err
	}
	if s.stats != nil {
		return s.stats, nil
	}
	return &eval.RunStats{WallTime: 0.0123, Memory: 3 * 1024 * 1024, Fields: map[string]string{}}, nil
}

type env struct {
	st      *memstore.Store
	dm      *datastore.StorageManager
	sandbox *fakeSandbox
	runner  *fakeRunner
	h       *Handler
	now     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fsys := afero.NewMemMapFs()
	dm, err := datastore.NewManager(fsys, config.StorageConf{
		SubmissionPath: "/srv/submissions",
		TestcasePath:   "/srv/testcases",
		CheckerPath:    "/srv/checkers",
	})
	require.NoError(t, err)

	st := memstore.New()
	st.AddLanguage(cppLang)
	st.AddContest(&regrader.Contest{
		ID:           1,
		Name:         "Final",
		StartTime:    contestStart,
		EndTime:      at(300),
		FreezeTime:   at(240),
		UnfreezeTime: at(360),
	}, 10)
	st.AddUser(&regrader.User{ID: 1, Name: "Alice", Username: "alice", CategoryID: 10})
	st.AddProblem(&regrader.Problem{ID: 100, Name: "Sum", TimeLimit: 1, MemoryLimit: 64},
		&regrader.Testcase{ID: 1, ProblemID: 100, Input: "1.in", Output: "1.out"},
		&regrader.Testcase{ID: 2, ProblemID: 100, Input: "2.in", Output: "2.out"},
	)
	st.AddContestProblem(&regrader.ContestProblem{ContestID: 1, ProblemID: 100, Alias: "A"})

	for name, content := range map[string]string{"1.in": "1 2\n", "1.out": "3\n", "2.in": "1 2\n", "2.out": "3\n"} {
		require.NoError(t, dm.SaveTestcase(100, name, bytes.NewBufferString(content)))
	}

	e := &env{st: st, dm: dm, sandbox: &fakeSandbox{fs: fsys, output: "3\n"}, runner: &fakeRunner{}, now: at(30)}
	h, err := NewHandler(Options{
		Store:   st,
		Storage: dm,
		Sandbox: e.sandbox,
		Runner:  e.runner,
		Conf: config.GraderConf{
			Hostname:      "judge-1",
			CheckerWallTL: 5,
			LeaseTTL:      config.Duration{Duration: 30 * time.Second},
			RetryDelay:    config.Duration{Duration: time.Minute},
			MaxAttempts:   3,
		},
		Logger: slog.New(slog.DiscardHandler),
		Now:    func() time.Time { return e.now },
	})
	require.NoError(t, err)
	e.h = h
	return e
}

func (e *env) submit(t *testing.T, minute int, code string) int {
	t.Helper()
	id := e.st.AddSubmission(&regrader.Submission{
		UserID:     1,
		ContestID:  1,
		ProblemID:  100,
		LanguageID: cppLang.ID,
		SubmitTime: at(minute),
	})
	require.NoError(t, e.dm.InitSubmission(id, cppLang, bytes.NewBufferString(code)))
	return id
}

func (e *env) submission(t *testing.T, id int) *regrader.Submission {
	t.Helper()
	sub, err := e.st.Submission(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func (e *env) entry(t *testing.T, view regrader.ScoreboardView) *regrader.ScoreboardEntry {
	t.Helper()
	entry, err := e.st.ScoreboardEntry(context.Background(), view, 1, 1, 100)
	require.NoError(t, err)
	return entry
}

func TestJudgeAccepted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t, 7, "int main() {}\n")

	n, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sub := e.submission(t, id)
	assert.Equal(t, regrader.VerdictAccepted, sub.Verdict)
	assert.Equal(t, regrader.ActionNone, sub.PendingAction)
	assert.Nil(t, sub.ClaimedBy)
	require.NotNil(t, sub.StartJudgeTime)
	require.NotNil(t, sub.EndJudgeTime)

	judgings, err := e.st.Judgings(ctx, id)
	require.NoError(t, err)
	require.Len(t, judgings, 2)
	for _, j := range judgings {
		assert.Equal(t, regrader.VerdictAccepted, j.Verdict)
		assert.Equal(t, 13, j.Time)
		assert.Equal(t, 3072, j.Memory)
	}

	for _, view := range regrader.ScoreboardViews {
		entry := e.entry(t, view)
		require.NotNil(t, entry, view)
		assert.True(t, entry.IsAccepted)
		assert.Equal(t, 1, entry.SubmissionCount)
		assert.Equal(t, 7, entry.TimePenalty)
	}

	// the judging scratch area is gone
	ok, err := afero.DirExists(e.dm.Fs(), e.dm.JudgingDir(id, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJudgeWrongAnswerRunsEveryTestcase(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.dm.SaveTestcase(100, "1.out", bytes.NewBufferString("4\n")))
	id := e.submit(t, 5, "int main() {}\n")

	_, err := e.h.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, regrader.VerdictWrongAnswer, e.submission(t, id).Verdict)
	assert.Equal(t, 2, e.sandbox.calls)

	judgings, err := e.st.Judgings(ctx, id)
	require.NoError(t, err)
	require.Len(t, judgings, 2)
	assert.Equal(t, regrader.VerdictWrongAnswer, judgings[0].Verdict)
	assert.Equal(t, regrader.VerdictAccepted, judgings[1].Verdict)

	entry := e.entry(t, regrader.ViewAdmin)
	require.NotNil(t, entry)
	assert.False(t, entry.IsAccepted)
	assert.Equal(t, 1, entry.SubmissionCount)
}

func TestJudgeCompileError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.runner.exitCode = 1
	e.runner.out = "/srv/submissions/1/source/sol.cpp:1: error: expected ';'\n"
	id := e.submit(t, 5, "int main() {\n")

	_, err := e.h.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, regrader.VerdictCompileError, e.submission(t, id).Verdict)
	assert.Zero(t, e.sandbox.calls)

	out, err := e.dm.CompileOutput(id)
	require.NoError(t, err)
	assert.Equal(t, "sol.cpp:1: error: expected ';'\n", string(out))

	judgings, err := e.st.Judgings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, judgings)
}

func TestJudgeForbiddenKeyword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t, 5, "int main() {\n  fork();\n}\n")

	_, err := e.h.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, regrader.VerdictCompileError, e.submission(t, id).Verdict)
	assert.Zero(t, e.runner.calls)

	out, err := e.dm.CompileOutput(id)
	require.NoError(t, err)
	assert.Equal(t, "sol.cpp:2: forbidden keyword 'fork'\n", string(out))
}

func TestRegrade(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.dm.SaveTestcase(100, "2.out", bytes.NewBufferString("wrong\n")))
	id := e.submit(t, 12, "int main() {}\n")

	_, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, regrader.VerdictWrongAnswer, e.submission(t, id).Verdict)

	// fix the reference output and ask for a regrade
	require.NoError(t, e.dm.SaveTestcase(100, "2.out", bytes.NewBufferString("3\n")))
	regrade := regrader.ActionRegrade
	require.NoError(t, e.st.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{PendingAction: &regrade}))

	n, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sub := e.submission(t, id)
	assert.Equal(t, regrader.VerdictAccepted, sub.Verdict)
	assert.Equal(t, regrader.ActionNone, sub.PendingAction)

	judgings, err := e.st.Judgings(ctx, id)
	require.NoError(t, err)
	assert.Len(t, judgings, 2)

	entry := e.entry(t, regrader.ViewAdmin)
	require.NotNil(t, entry)
	assert.True(t, entry.IsAccepted)
	assert.Equal(t, 1, entry.SubmissionCount)
	assert.Equal(t, 12, entry.TimePenalty)
}

func TestIgnore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t, 3, "int main() {}\n")

	_, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, e.entry(t, regrader.ViewContestant))
	calls := e.sandbox.calls

	ignore := regrader.ActionIgnore
	require.NoError(t, e.st.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{PendingAction: &ignore}))
	_, err = e.h.RunOnce(ctx)
	require.NoError(t, err)

	sub := e.submission(t, id)
	assert.Equal(t, regrader.VerdictIgnored, sub.Verdict)
	assert.Equal(t, regrader.ActionNone, sub.PendingAction)
	assert.Equal(t, calls, e.sandbox.calls)

	for _, view := range regrader.ScoreboardViews {
		assert.Nil(t, e.entry(t, view), view)
	}
}

func TestSandboxFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sandbox.err = errors.New("box is broken")
	id := e.submit(t, 3, "int main() {}\n")

	n, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	sub := e.submission(t, id)
	assert.Equal(t, regrader.VerdictPending, sub.Verdict)
	assert.Nil(t, sub.StartJudgeTime)
	assert.Nil(t, sub.ClaimedBy)
	assert.Equal(t, 1, sub.FailedAttempts)
	require.NotNil(t, sub.RetryAfter)
	assert.Equal(t, at(31), *sub.RetryAfter)

	judgings, err := e.st.Judgings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, judgings)
	assert.Nil(t, e.entry(t, regrader.ViewAdmin))

	// held back until the retry delay passes
	e.sandbox.err = nil
	n, err = e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.now = at(31)
	n, err = e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sub = e.submission(t, id)
	assert.Equal(t, regrader.VerdictAccepted, sub.Verdict)
	assert.Zero(t, sub.FailedAttempts)
	assert.Nil(t, sub.RetryAfter)
}

func TestBrokenSubmissionDoesNotBlockQueue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	// no stored source
	broken := e.st.AddSubmission(&regrader.Submission{
		UserID: 1, ContestID: 1, ProblemID: 100, LanguageID: cppLang.ID, SubmitTime: at(1),
	})
	good := e.submit(t, 2, "int main() {}\n")

	n, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, regrader.VerdictAccepted, e.submission(t, good).Verdict)
	assert.Equal(t, regrader.VerdictPending, e.submission(t, broken).Verdict)
	assert.Equal(t, 1, e.submission(t, broken).FailedAttempts)

	// retried until the attempts run out, then parked
	for i := 2; i <= 5; i++ {
		e.now = e.now.Add(time.Minute)
		_, err := e.h.RunOnce(ctx)
		require.NoError(t, err)
	}
	sub := e.submission(t, broken)
	assert.Equal(t, 3, sub.FailedAttempts)
	assert.Nil(t, sub.ClaimedBy)

	// a regrade request gives it a fresh start
	require.NoError(t, e.dm.InitSubmission(broken, cppLang, bytes.NewBufferString("int main() {}\n")))
	require.NoError(t, e.st.RequestAction(ctx, broken, regrader.ActionRegrade, e.now, 30*time.Second))
	n, err = e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sub = e.submission(t, broken)
	assert.Equal(t, regrader.VerdictAccepted, sub.Verdict)
	assert.Zero(t, sub.FailedAttempts)
}

func TestMissingTestcaseFileIsNotWrongAnswer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.dm.Fs().Remove(e.dm.TestcasePath(100, "2.out")))
	id := e.submit(t, 4, "int main() {}\n")

	n, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	sub := e.submission(t, id)
	assert.Equal(t, regrader.VerdictPending, sub.Verdict)
	assert.Equal(t, 1, sub.FailedAttempts)
	assert.Nil(t, e.entry(t, regrader.ViewAdmin))
}

func TestRequestDuringJudgingIsKept(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t, 8, "int main() {}\n")
	e.sandbox.onRun = func(call int) {
		if call == 1 {
			// a regrade request lands while the first testcase runs
			regrade := regrader.ActionRegrade
			require.NoError(t, e.st.UpdateSubmission(ctx, id, regrader.SubmissionUpdate{PendingAction: &regrade}))
		}
	}

	n, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the request must trigger a second judging")
	assert.Equal(t, 4, e.sandbox.calls)

	sub := e.submission(t, id)
	assert.Equal(t, regrader.VerdictAccepted, sub.Verdict)
	assert.Equal(t, regrader.ActionNone, sub.PendingAction)

	judgings, err := e.st.Judgings(ctx, id)
	require.NoError(t, err)
	assert.Len(t, judgings, 2)
}

func TestHeartbeatDuringLongJudging(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.submit(t, 8, "int main() {}\n")

	var alive []*regrader.GraderHeartbeat
	e.sandbox.onRun = func(call int) {
		e.now = e.now.Add(20 * time.Second)
		if call == 2 {
			var err error
			alive, err = e.st.ActiveGraders(ctx, e.now)
			require.NoError(t, err)
		}
	}

	_, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, alive, 1, "grader dropped out while judging")
	assert.Equal(t, e.h.WorkerID(), alive[0].WorkerID)
}

func TestLiveClaimIsSkipped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	other, claimedAt := "other-worker", at(30).Add(-5*time.Second)
	id := e.st.AddSubmission(&regrader.Submission{
		UserID: 1, ContestID: 1, ProblemID: 100, LanguageID: cppLang.ID,
		SubmitTime: at(1), ClaimedBy: &other, ClaimedAt: &claimedAt,
	})
	require.NoError(t, e.dm.InitSubmission(id, cppLang, bytes.NewBufferString("int main() {}\n")))

	n, err := e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, regrader.VerdictPending, e.submission(t, id).Verdict)

	// an expired claim is fair game
	stale := at(30).Add(-time.Hour)
	e.st.AddSubmission(&regrader.Submission{
		ID: id, UserID: 1, ContestID: 1, ProblemID: 100, LanguageID: cppLang.ID,
		SubmitTime: at(1), ClaimedBy: &other, ClaimedAt: &stale,
	})
	n, err = e.h.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckIn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.h.RunOnce(ctx)
	require.NoError(t, err)

	graders, err := e.st.ActiveGraders(ctx, at(30))
	require.NoError(t, err)
	require.Len(t, graders, 1)
	assert.Equal(t, e.h.WorkerID(), graders[0].WorkerID)
	assert.Equal(t, "judge-1", graders[0].Hostname)
	assert.Equal(t, at(30).Add(30*time.Second), graders[0].LeaseUntil)

	graders, err = e.st.ActiveGraders(ctx, at(31))
	require.NoError(t, err)
	assert.Empty(t, graders)
}

func TestStartStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.h.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("grader did not stop")
	}
}
