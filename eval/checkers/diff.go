package checkers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/eval"
	"github.com/spf13/afero"
)

const (
	ErrOut     = "Internal checker error"
	CorrectOut = "Correct"
	WrongOut   = "Wrong Answer"
)

const compareChunk = 32 * 1024

var _ eval.Checker = &DiffChecker{}

// DiffChecker accepts an output only if it is byte for byte equal to the reference.
type DiffChecker struct {
	Fs     afero.Fs
	Logger *slog.Logger
}

func (d *DiffChecker) Prepare(_ context.Context) (string, error) { return "", nil }

func (d *DiffChecker) Cleanup(_ context.Context) error { return nil }

func (d *DiffChecker) RunChecker(ctx context.Context, job *eval.CheckJob) (string, regrader.Verdict) {
	pf, err := d.Fs.Open(job.OutputPath)
	if err != nil {
		// nothing was printed
		return WrongOut, regrader.VerdictWrongAnswer
	}
	defer pf.Close()
	cf, err := d.Fs.Open(job.AnswerPath)
	if err != nil {
		d.logger().WarnContext(ctx, "Couldn't open reference output", slog.String("path", job.AnswerPath), slog.Any("err", err))
		return ErrOut, regrader.VerdictWrongAnswer
	}
	defer cf.Close()

	same, err := sameContents(pf, cf)
	if err != nil {
		d.logger().WarnContext(ctx, "Couldn't compare outputs", slog.String("path", job.AnswerPath), slog.Any("err", err))
		return ErrOut, regrader.VerdictWrongAnswer
	}
	if !same {
		return WrongOut, regrader.VerdictWrongAnswer
	}
	return CorrectOut, regrader.VerdictAccepted
}

func (d *DiffChecker) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func sameContents(a, b io.Reader) (bool, error) {
	bufA := make([]byte, compareChunk)
	bufB := make([]byte, compareChunk)
	for {
		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)
		endA, endB := isEnd(errA), isEnd(errB)
		if errA != nil && !endA {
			return false, errA
		}
		if errB != nil && !endB {
			return false, errB
		}
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if endA || endB {
			return endA && endB, nil
		}
	}
}

func isEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
