package eval

import (
	"strconv"
	"strings"

	"github.com/fushar/regrader"
	"github.com/google/shlex"
)

const (
	PathReplace        = "[PATH]"
	TimeLimitReplace   = "[TIME_LIMIT]"
	MemoryLimitReplace = "[MEMORY_LIMIT]"
)

// Substitutions are the values for the tokens of a language command template.
type Substitutions struct {
	Path string
	// seconds
	TimeLimit float64
	// megabytes
	MemoryLimit int
}

// MakeCommand splits a command template into an argument vector and replaces
// the tokens inside every argument. No shell is involved, so a substituted
// value is always part of exactly one argument.
func MakeCommand(template string, subs Substitutions) ([]string, error) {
	args, err := shlex.Split(template)
	if err != nil {
		return nil, regrader.WrapStatus(err, 400, "Invalid command template %q", template)
	}
	if len(args) == 0 {
		return nil, regrader.Statusf(400, "Empty command template")
	}
	r := strings.NewReplacer(
		PathReplace, subs.Path,
		TimeLimitReplace, FormatSeconds(subs.TimeLimit),
		MemoryLimitReplace, strconv.Itoa(subs.MemoryLimit),
	)
	for i := range args {
		args[i] = r.Replace(args[i])
	}
	return args, nil
}

func FormatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
