package box

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fushar/regrader/eval"
	"github.com/spf13/afero"
)

const (
	runErrRetries = 3
	runErrTimeout = 200 * time.Millisecond

	// statusInternal is written by the box when it fails itself.
	statusInternal = "XX"
)

var _ eval.Sandbox = &MoeBox{}

// MoeBox drives the moe sandbox binary. Every invocation is independent, all
// file paths come from the RunConfig.
type MoeBox struct {
	mu sync.Mutex

	path         string
	syscallFlags []string

	fs     afero.Fs
	logger *slog.Logger
}

// New returns a sandbox that runs the box binary at path. syscallFlags are
// added to the command line when a language restricts system calls.
func New(path string, syscallFlags []string, fsys afero.Fs, logger *slog.Logger) *MoeBox {
	if logger == nil {
		logger = slog.Default()
	}
	return &MoeBox{path: path, syscallFlags: syscallFlags, fs: fsys, logger: logger}
}

// buildRunFlags compiles all flags into an array
func (b *MoeBox) buildRunFlags(c *eval.RunConfig) (res []string) {
	if c.MemoryLimit > 0 {
		res = append(res, "-m"+strconv.Itoa(c.MemoryLimit))
	}
	if c.LimitSyscall {
		res = append(res, b.syscallFlags...)
	}

	res = append(res, "-w"+eval.FormatSeconds(c.WallTimeLimit))

	if c.InputPath != "" {
		res = append(res, "-i"+c.InputPath)
	}
	if c.OutputPath != "" {
		res = append(res, "-o"+c.OutputPath)
	}
	if c.StderrPath != "" {
		res = append(res, "-r"+c.StderrPath)
	}
	res = append(res, "-M"+c.MetaPath)

	res = append(res, "--")
	return
}

func (b *MoeBox) runCommand(ctx context.Context, params []string, metaFile string) (*eval.RunStats, error) {
	// Old results must not be mistaken for this run's
	if err := b.fs.Remove(metaFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	err := exec.CommandContext(ctx, b.path, params...).Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// The box itself could not be started
		return nil, fmt.Errorf("could not run sandbox: %w", err)
	}

	f, err := b.fs.Open(metaFile)
	if err != nil {
		b.logger.WarnContext(ctx, "Couldn't open meta file", slog.String("path", metaFile), slog.Any("err", err))
		return nil, nil
	}
	defer f.Close()
	return ParseMetaFile(f), nil
}

func (b *MoeBox) RunCommand(ctx context.Context, command []string, conf *eval.RunConfig) (*eval.RunStats, error) {
	if conf.MetaPath == "" {
		return nil, errors.New("sandbox run needs a meta file path")
	}
	if len(command) == 0 {
		return nil, errors.New("empty sandbox command")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var meta *eval.RunStats
	var err error

	for i := 1; i <= runErrRetries; i++ {
		meta, err = b.runCommand(ctx, append(b.buildRunFlags(conf), command...), conf.MetaPath)
		if err != nil {
			return nil, err
		}
		if meta != nil && meta.Status != statusInternal {
			return meta, nil
		}

		b.logger.WarnContext(ctx, "Sandbox run error, retrying",
			slog.Int("attempt", i), slog.Int("max_attempts", runErrRetries),
			slog.String("meta", spew.Sdump(meta)),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(runErrTimeout):
		}
	}

	if meta == nil {
		return nil, fmt.Errorf("sandbox did not write a result file after %d attempts", runErrRetries)
	}
	// A persistent internal error is reported as an abnormal termination
	return meta, nil
}
