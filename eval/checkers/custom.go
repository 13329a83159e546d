package checkers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/eval"
	"github.com/spf13/afero"
)

// acceptToken must be the whole first line of the checker output.
const acceptToken = "[OK]"

var _ eval.Checker = &CustomChecker{}

// CustomChecker runs the problem's compiled checker inside the sandbox. The
// checker reads the contestant output on stdin and receives the testcase
// input and the reference output as arguments.
type CustomChecker struct {
	Sandbox  eval.Sandbox
	Fs       afero.Fs
	ExecPath string
	// seconds
	WallLimit float64
	Logger    *slog.Logger
}

// Prepare makes sure the compiled checker is present.
func (c *CustomChecker) Prepare(_ context.Context) (string, error) {
	ok, err := afero.Exists(c.Fs, c.ExecPath)
	if err != nil {
		return ErrOut, err
	}
	if !ok {
		return "Checker executable is missing", regrader.Statusf(500, "Checker executable %q not found", c.ExecPath)
	}
	return "", nil
}

func (c *CustomChecker) Cleanup(_ context.Context) error { return nil }

func (c *CustomChecker) RunChecker(ctx context.Context, job *eval.CheckJob) (string, regrader.Verdict) {
	opPath := filepath.Join(job.ScratchDir, "checker_op")
	defer func() {
		if err := c.Fs.Remove(opPath); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
			c.logger().WarnContext(ctx, "Couldn't remove checker output", slog.Any("err", err))
		}
	}()

	conf := &eval.RunConfig{
		WallTimeLimit: c.WallLimit,
		InputPath:     job.OutputPath,
		OutputPath:    opPath,
		StderrPath:    filepath.Join(job.ScratchDir, "checker_error"),
		MetaPath:      filepath.Join(job.ScratchDir, "checker_result"),
	}
	if _, err := c.Sandbox.RunCommand(ctx, []string{c.ExecPath, job.InputPath, job.AnswerPath}, conf); err != nil {
		c.logger().WarnContext(ctx, "Checker could not be run", slog.Any("err", err))
		return ErrOut, regrader.VerdictWrongAnswer
	}

	line, err := firstLine(c.Fs, opPath)
	if err != nil {
		return ErrOut, regrader.VerdictWrongAnswer
	}
	if line == acceptToken {
		return CorrectOut, regrader.VerdictAccepted
	}
	return fmt.Sprintf("%s: %q", WrongOut, line), regrader.VerdictWrongAnswer
}

func (c *CustomChecker) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func firstLine(fsys afero.Fs, p string) (string, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		// an empty output is a rejection, not an error
		return "", nil
	}
	return strings.TrimRight(line, "\r\n"), nil
}
