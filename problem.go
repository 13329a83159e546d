package regrader

type Problem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	// seconds
	TimeLimit float64 `db:"time_limit" json:"time_limit"`
	// megabytes
	MemoryLimit int `db:"memory_limit" json:"memory_limit"`
}

// Testcase points at an input and reference output file stored under the problem's testcase directory.
type Testcase struct {
	ID        int    `json:"id"`
	ProblemID int    `db:"problem_id" json:"problem_id"`
	Input     string `json:"input"`
	Output    string `json:"output"`

	InputSize  int64 `db:"input_size" json:"input_size"`
	OutputSize int64 `db:"output_size" json:"output_size"`
}

// Checker is a problem's verifier. Checker holds the source file name; the
// compiled binary always lives next to it under the name "check".
type Checker struct {
	ID        int    `json:"id"`
	ProblemID int    `db:"problem_id" json:"problem_id"`
	Checker   string `json:"checker"`
}
