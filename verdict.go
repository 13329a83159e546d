package regrader

import "strconv"

// Verdict is the outcome of a submission or of a single testcase run.
// Codes 2 through 8 are ordered by severity.
type Verdict int

const (
	VerdictPending          Verdict = 0
	VerdictCompileError     Verdict = 1
	VerdictAccepted         Verdict = 2
	VerdictWrongAnswer      Verdict = 3
	VerdictRuntimeError     Verdict = 4
	VerdictTimeLimit        Verdict = 5
	VerdictMemoryLimit      Verdict = 6
	VerdictForbiddenSyscall Verdict = 7
	VerdictOutputLimit      Verdict = 8
	VerdictIgnored          Verdict = 99
)

var verdictNames = map[Verdict]string{
	VerdictPending:          "Pending",
	VerdictCompileError:     "Compile Error",
	VerdictAccepted:         "Accepted",
	VerdictWrongAnswer:      "Wrong Answer",
	VerdictRuntimeError:     "Runtime Error",
	VerdictTimeLimit:        "Time Limit Exceeded",
	VerdictMemoryLimit:      "Memory Limit Exceeded",
	VerdictForbiddenSyscall: "Forbidden System Call",
	VerdictOutputLimit:      "Output Limit Exceeded",
	VerdictIgnored:          "Ignored",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return "Verdict(" + strconv.Itoa(int(v)) + ")"
}

// Valid reports whether v is one of the defined verdict codes.
func (v Verdict) Valid() bool {
	_, ok := verdictNames[v]
	return ok
}

// Final reports whether v is a terminal judging outcome.
func (v Verdict) Final() bool {
	return v.Valid() && v != VerdictPending
}

// Worst returns the more severe of two testcase verdicts.
func Worst(a, b Verdict) Verdict {
	return max(a, b)
}

// PendingAction is an administrative instruction queued on a submission.
// It is kept apart from Verdict, which only ever holds outcomes.
type PendingAction string

const (
	ActionNone    PendingAction = ""
	ActionRegrade PendingAction = "regrade"
	ActionIgnore  PendingAction = "ignore"
)

func (a PendingAction) Valid() bool {
	switch a {
	case ActionNone, ActionRegrade, ActionIgnore:
		return true
	}
	return false
}
