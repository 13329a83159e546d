package grader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/davecgh/go-spew/spew"
	"github.com/fushar/regrader"
	"github.com/fushar/regrader/eval"
	"github.com/fushar/regrader/eval/checkers"
	"github.com/fushar/regrader/eval/tasks"
	"github.com/fushar/regrader/integrations/prometheus"
	"github.com/fushar/regrader/scoreboard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type submissionHandler struct {
	*Handler
	tx regrader.JudgeTx

	sub     *regrader.Submission
	lang    *regrader.Language
	user    *regrader.User
	problem *regrader.Problem
	alias   string
}

// judge runs one claimed submission in a single transaction. Nothing it
// writes survives an error.
func (h *Handler) judge(ctx context.Context, claimed *regrader.Submission) error {
	ctx, span := otel.Tracer("grader").Start(ctx, "JudgeSubmission", trace.WithAttributes(
		attribute.Int("submission_id", claimed.ID),
		attribute.String("pending_action", string(claimed.PendingAction)),
	))
	defer span.End()

	start := h.now()
	var verdict regrader.Verdict
	err := h.store.InTx(ctx, func(tx regrader.JudgeTx) error {
		sh := &submissionHandler{Handler: h, tx: tx}
		if err := sh.load(ctx, claimed.ID); err != nil {
			return err
		}
		v, err := sh.run(ctx)
		verdict = v
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "judging failed")
		return err
	}

	span.SetAttributes(attribute.String("verdict", verdict.String()))
	prometheus.ObserveVerdict(verdict, h.now().Sub(start))
	return nil
}

func (sh *submissionHandler) load(ctx context.Context, subID int) error {
	sub, err := sh.tx.Submission(ctx, subID)
	if err != nil {
		return fmt.Errorf("couldn't get submission: %w", err)
	}
	sh.sub = sub

	sh.lang, err = sh.language(ctx, sub.LanguageID)
	if err != nil {
		return fmt.Errorf("couldn't get language: %w", err)
	}
	sh.user, err = sh.tx.User(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("couldn't get user: %w", err)
	}
	sh.problem, err = sh.tx.Problem(ctx, sub.ProblemID)
	if err != nil {
		return fmt.Errorf("couldn't get problem: %w", err)
	}
	cp, err := sh.tx.ContestProblem(ctx, sub.ContestID, sub.ProblemID)
	if err != nil {
		return fmt.Errorf("couldn't get contest problem: %w", err)
	}
	sh.alias = cp.Alias
	return nil
}

func (sh *submissionHandler) logAttrs() []any {
	return []any{
		slog.Int("submission_id", sh.sub.ID),
		slog.String("user", sh.user.Username),
		slog.Int("contest_id", sh.sub.ContestID),
		slog.String("problem", sh.alias),
		slog.String("language", sh.lang.Name),
	}
}

func (sh *submissionHandler) run(ctx context.Context) (regrader.Verdict, error) {
	action := sh.sub.PendingAction
	logger := sh.logger.With(sh.logAttrs()...)

	var verdict regrader.Verdict
	switch action {
	case regrader.ActionIgnore:
		logger.InfoContext(ctx, "Ignoring submission")
		verdict = regrader.VerdictIgnored
	case regrader.ActionRegrade, regrader.ActionNone:
		if action == regrader.ActionRegrade {
			logger.InfoContext(ctx, "Regrading submission")
			if err := sh.tx.DeleteJudgings(ctx, sh.sub.ID); err != nil {
				return 0, fmt.Errorf("couldn't delete old judgings: %w", err)
			}
		} else {
			logger.InfoContext(ctx, "Judging submission")
		}

		startTime := sh.now()
		if err := sh.tx.UpdateSubmission(ctx, sh.sub.ID, regrader.SubmissionUpdate{StartJudgeTime: &startTime}); err != nil {
			return 0, fmt.Errorf("couldn't set judge start time: %w", err)
		}

		v, err := sh.compileAndRun(ctx, logger)
		if err != nil {
			return 0, err
		}
		verdict = v
	default:
		return 0, regrader.Statusf(400, "Unknown pending action %q", action)
	}

	upd := regrader.SubmissionUpdate{
		Verdict:       &verdict,
		ClearAction:   &action,
		ReleaseClaim:  true,
		ResetAttempts: true,
	}
	if verdict != regrader.VerdictIgnored {
		endTime := sh.now()
		upd.EndJudgeTime = &endTime
	}
	if err := sh.tx.UpdateSubmission(ctx, sh.sub.ID, upd); err != nil {
		return 0, fmt.Errorf("couldn't finalize submission: %w", err)
	}

	judged := *sh.sub
	judged.Verdict = verdict
	judged.PendingAction = regrader.ActionNone
	if action != regrader.ActionNone {
		if err := scoreboard.Recalculate(ctx, sh.tx, scoreboard.SubmissionScope(&judged)); err != nil {
			return 0, fmt.Errorf("couldn't recalculate scoreboard: %w", err)
		}
	} else if err := scoreboard.AddSubmission(ctx, sh.tx, &judged); err != nil {
		return 0, fmt.Errorf("couldn't update scoreboard: %w", err)
	}

	logger.InfoContext(ctx, "Submission judged", slog.String("verdict", verdict.String()))
	return verdict, nil
}

func (sh *submissionHandler) compileAndRun(ctx context.Context, logger *slog.Logger) (regrader.Verdict, error) {
	resp, err := sh.compiler.Compile(ctx, &tasks.CompileRequest{
		SubmissionID: sh.sub.ID,
		Language:     sh.lang,
		Problem:      sh.problem,
	})
	if err != nil {
		return 0, fmt.Errorf("couldn't compile submission: %w", err)
	}
	if !resp.Success {
		logger.InfoContext(ctx, "Compilation failed", slog.Int("exit_code", resp.ExitCode))
		return regrader.VerdictCompileError, nil
	}
	defer func() {
		if err := sh.dm.RemoveExecutable(sh.sub.ID, sh.lang); err != nil {
			logger.WarnContext(ctx, "Couldn't remove executable", slog.Any("err", err))
		}
	}()

	checker, err := sh.checker(ctx)
	if err != nil {
		return 0, err
	}
	if out, err := checker.Prepare(ctx); err != nil {
		logger.ErrorContext(ctx, "Couldn't prepare checker", slog.String("output", out), slog.Any("err", err))
		return 0, err
	}
	defer func() {
		if err := checker.Cleanup(ctx); err != nil {
			logger.WarnContext(ctx, "Couldn't clean up checker", slog.Any("err", err))
		}
	}()

	testcases, err := sh.tx.Testcases(ctx, sh.problem.ID)
	if err != nil {
		return 0, fmt.Errorf("couldn't get testcases: %w", err)
	}

	verdicts := make([]regrader.Verdict, 0, len(testcases))
	for _, tc := range testcases {
		judging, err := sh.executor.RunTestcase(ctx, &tasks.ExecuteRequest{
			SubmissionID: sh.sub.ID,
			Problem:      sh.problem,
			Language:     sh.lang,
			Testcase:     tc,
			Checker:      checker,
		})
		if err != nil {
			logger.WarnContext(ctx, "Couldn't run testcase", slog.Int("testcase_id", tc.ID), slog.String("request", spew.Sdump(tc)))
			return 0, fmt.Errorf("couldn't run testcase %d: %w", tc.ID, err)
		}
		if err := sh.tx.InsertJudging(ctx, judging); err != nil {
			return 0, fmt.Errorf("couldn't save judging: %w", err)
		}
		logger.DebugContext(ctx, "Testcase judged",
			slog.Int("testcase_id", tc.ID),
			slog.String("verdict", judging.Verdict.String()),
			slog.Int("time_ms", judging.Time),
			slog.Int("memory_kb", judging.Memory),
		)
		verdicts = append(verdicts, judging.Verdict)
		sh.keepAlive(ctx)
	}

	return tasks.Aggregate(verdicts), nil
}

func (sh *submissionHandler) checker(ctx context.Context) (eval.Checker, error) {
	row, err := sh.tx.ProblemChecker(ctx, sh.problem.ID)
	if err != nil {
		return nil, fmt.Errorf("couldn't get problem checker: %w", err)
	}
	if row == nil {
		return &checkers.DiffChecker{Fs: sh.dm.Fs(), Logger: sh.logger}, nil
	}
	wallLimit := sh.conf.CheckerWallTL
	if wallLimit <= 0 {
		wallLimit = 5
	}
	return &checkers.CustomChecker{
		Sandbox:   sh.sandbox,
		Fs:        sh.dm.Fs(),
		ExecPath:  sh.dm.CheckerExecPath(sh.problem.ID),
		WallLimit: wallLimit,
		Logger:    sh.logger,
	}, nil
}
