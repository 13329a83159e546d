package box

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"

	"github.com/fushar/regrader/eval"
)

// notFoundExitCode mimics what a shell returns for an unknown command.
const notFoundExitCode = 127

var _ eval.CommandRunner = &HostRunner{}

// HostRunner runs compilers directly on the host.
type HostRunner struct{}

func (HostRunner) Run(ctx context.Context, dir string, argv []string) ([]byte, int, error) {
	if len(argv) == 0 {
		return nil, 0, errors.New("empty command")
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return out.Bytes(), 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out.Bytes(), exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		out.WriteString(argv[0] + ": command not found\n")
		return out.Bytes(), notFoundExitCode, nil
	}
	if ctx.Err() != nil {
		return out.Bytes(), 0, ctx.Err()
	}
	return out.Bytes(), 0, err
}
