package regrader

import "strings"

type Language struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	SourceName string `db:"source_name" json:"source_name"`
	ExeName    string `db:"exe_name" json:"exe_name"`

	CompileCommand string `db:"compile_cmd" json:"compile_cmd"`
	RunCommand     string `db:"run_cmd" json:"run_cmd"`

	LimitMemory  bool `db:"limit_memory" json:"limit_memory"`
	LimitSyscall bool `db:"limit_syscall" json:"limit_syscall"`

	// newline separated
	ForbiddenKeywords string `db:"forbidden_keywords" json:"forbidden_keywords"`
}

// Keywords returns the forbidden keyword list with blank entries removed.
func (l *Language) Keywords() []string {
	var kws []string
	for _, kw := range strings.Split(l.ForbiddenKeywords, "\n") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		kws = append(kws, kw)
	}
	return kws
}
