package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fushar/regrader"
	"github.com/fushar/regrader/datastore"
	"github.com/fushar/regrader/eval"
	"github.com/spf13/afero"
)

type ExecuteRequest struct {
	SubmissionID int
	Problem      *regrader.Problem
	Language     *regrader.Language
	Testcase     *regrader.Testcase
	Checker      eval.Checker
}

// Executor runs a compiled submission against single testcases.
type Executor struct {
	Store   *datastore.StorageManager
	Sandbox eval.Sandbox
	// OutputLimitKB caps the produced output when positive.
	OutputLimitKB int
	Logger        *slog.Logger
}

// RunTestcase judges one testcase and returns the judging row for it. Scratch
// files are gone when it returns.
func (e *Executor) RunTestcase(ctx context.Context, req *ExecuteRequest) (*regrader.Judging, error) {
	subID, tc := req.SubmissionID, req.Testcase

	dir, err := e.Store.PrepareJudgingDir(subID, tc.ID)
	if err != nil {
		return nil, fmt.Errorf("couldn't create judging directory: %w", err)
	}
	defer func() {
		if err := e.Store.CleanJudgingDir(subID, tc.ID); err != nil {
			e.Logger.WarnContext(ctx, "Couldn't clean judging directory", slog.Int("testcase_id", tc.ID), slog.Any("err", err))
		}
	}()

	cmd, err := eval.MakeCommand(req.Language.RunCommand, eval.Substitutions{
		Path:        e.Store.SourceDir(subID),
		TimeLimit:   req.Problem.TimeLimit,
		MemoryLimit: req.Problem.MemoryLimit,
	})
	if err != nil {
		return nil, err
	}

	for _, name := range []string{tc.Input, tc.Output} {
		p := e.Store.TestcasePath(req.Problem.ID, name)
		ok, err := afero.Exists(e.Store.Fs(), p)
		if err != nil {
			return nil, fmt.Errorf("couldn't stat testcase file: %w", err)
		}
		if !ok {
			return nil, regrader.Statusf(500, "Testcase %d file %q is missing", tc.ID, p)
		}
	}

	conf := &eval.RunConfig{
		WallTimeLimit: req.Problem.TimeLimit,
		LimitSyscall:  req.Language.LimitSyscall,
		InputPath:     e.Store.TestcasePath(req.Problem.ID, tc.Input),
		OutputPath:    filepath.Join(dir, tc.Output),
		StderrPath:    filepath.Join(dir, "error"),
		MetaPath:      filepath.Join(dir, "result"),
	}
	if req.Language.LimitMemory {
		conf.MemoryLimit = 1024 * req.Problem.MemoryLimit
	}

	stats, err := e.Sandbox.RunCommand(ctx, cmd, conf)
	if err != nil {
		return nil, err
	}

	verdict := ClassifyRun(stats)
	if verdict == regrader.VerdictAccepted {
		verdict = e.checkOutput(ctx, req, conf.OutputPath, dir)
	}

	return &regrader.Judging{
		SubmissionID: subID,
		TestcaseID:   tc.ID,
		Time:         stats.TimeMillis(),
		Memory:       stats.MemoryKB(),
		Verdict:      verdict,
	}, nil
}

func (e *Executor) checkOutput(ctx context.Context, req *ExecuteRequest, outputPath, dir string) regrader.Verdict {
	if e.OutputLimitKB > 0 {
		if st, err := e.Store.Fs().Stat(outputPath); err == nil && st.Size() > int64(e.OutputLimitKB)*1024 {
			e.Logger.InfoContext(ctx, "Output limit exceeded",
				slog.Int("testcase_id", req.Testcase.ID),
				slog.String("size", humanize.IBytes(uint64(st.Size()))),
			)
			return regrader.VerdictOutputLimit
		}
	}

	comment, verdict := req.Checker.RunChecker(ctx, &eval.CheckJob{
		InputPath:  e.Store.TestcasePath(req.Problem.ID, req.Testcase.Input),
		AnswerPath: e.Store.TestcasePath(req.Problem.ID, req.Testcase.Output),
		OutputPath: outputPath,
		ScratchDir: dir,
	})
	e.Logger.DebugContext(ctx, "Checker finished", slog.Int("testcase_id", req.Testcase.ID), slog.String("comment", comment))
	return verdict
}
