package eval

import (
	"context"
	"math"

	"github.com/fushar/regrader"
)

// Sandbox runs one untrusted process under the limits in RunConfig and
// reports what the sandbox wrote in its result file.
type Sandbox interface {
	RunCommand(ctx context.Context, cmd []string, conf *RunConfig) (*RunStats, error)
}

// CommandRunner runs trusted commands (compilers) outside the sandbox.
type CommandRunner interface {
	// Run executes argv in dir without a shell and returns stdout and stderr interleaved.
	Run(ctx context.Context, dir string, argv []string) (output []byte, exitCode int, err error)
}

// Checker decides whether a produced output is correct.
type Checker interface {
	Prepare(context.Context) (string, error)
	Cleanup(context.Context) error

	// RunChecker returns a comment and either Accepted or Wrong Answer.
	RunChecker(ctx context.Context, job *CheckJob) (string, regrader.Verdict)
}

type CheckJob struct {
	// InputPath is the testcase input.
	InputPath string
	// AnswerPath is the reference output.
	AnswerPath string
	// OutputPath is what the contestant program produced.
	OutputPath string
	// ScratchDir receives the checker's own files and is removed by the caller.
	ScratchDir string
}

type RunConfig struct {
	// seconds, 0 means no limit
	WallTimeLimit float64
	// kilobytes, 0 means no limit
	MemoryLimit  int
	LimitSyscall bool

	InputPath  string
	OutputPath string
	StderrPath string
	MetaPath   string
}

type RunStats struct {
	// Status is empty when the program exited normally.
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	ExitSignal int    `json:"exit_signal"`
	Killed     bool   `json:"killed"`
	Message    string `json:"message"`

	// seconds
	WallTime float64 `json:"wall_time"`
	// bytes
	Memory int64 `json:"memory"`

	// Fields holds every key of the result file.
	Fields map[string]string `json:"fields"`
}

// TimeMillis is the wall time rounded up to whole milliseconds.
func (s *RunStats) TimeMillis() int {
	if s == nil {
		return 0
	}
	return int(math.Ceil(s.WallTime * 1000))
}

// MemoryKB is the peak memory rounded up to whole kilobytes.
func (s *RunStats) MemoryKB() int {
	if s == nil {
		return 0
	}
	return int(math.Ceil(float64(s.Memory) / 1024))
}
