package tasks

import (
	"github.com/fushar/regrader"
	"github.com/fushar/regrader/eval"
)

const (
	statusSignaled  = "SG"
	statusTimeout   = "TO"
	statusForbidden = "FO"

	signalSegv = 11
	signalKill = 9
)

// ClassifyRun maps a sandbox result to a verdict. A clean run yields
// Accepted, meaning the output still has to be checked.
func ClassifyRun(stats *eval.RunStats) regrader.Verdict {
	if stats == nil {
		return regrader.VerdictRuntimeError
	}
	_, hasStatus := stats.Fields["status"]
	switch {
	case stats.Status == statusSignaled && stats.ExitSignal == signalSegv:
		return regrader.VerdictRuntimeError
	case stats.Status == statusTimeout:
		return regrader.VerdictTimeLimit
	case stats.Status == statusSignaled && stats.ExitSignal == signalKill:
		return regrader.VerdictMemoryLimit
	case stats.Status == statusForbidden:
		return regrader.VerdictForbiddenSyscall
	case hasStatus || stats.Status != "":
		return regrader.VerdictRuntimeError
	}
	return regrader.VerdictAccepted
}

// Aggregate returns the overall verdict of a run: the most severe testcase
// verdict, and never better than Accepted.
func Aggregate(verdicts []regrader.Verdict) regrader.Verdict {
	overall := regrader.VerdictAccepted
	for _, v := range verdicts {
		overall = regrader.Worst(overall, v)
	}
	return overall
}
