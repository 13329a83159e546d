package regrader

type ScoreboardView string

const (
	// ViewContestant only counts submissions made up to the freeze time.
	ViewContestant ScoreboardView = "contestant"
	// ViewAdmin counts every submission.
	ViewAdmin ScoreboardView = "admin"
)

var ScoreboardViews = []ScoreboardView{ViewContestant, ViewAdmin}

func (v ScoreboardView) Valid() bool {
	return v == ViewContestant || v == ViewAdmin
}

type ScoreboardEntry struct {
	ContestID int `db:"contest_id" json:"contest_id"`
	UserID    int `db:"user_id" json:"user_id"`
	ProblemID int `db:"problem_id" json:"problem_id"`

	SubmissionCount int `db:"submission_cnt" json:"submission_cnt"`
	// minutes since contest start
	TimePenalty int  `db:"time_penalty" json:"time_penalty"`
	IsAccepted  bool `db:"is_accepted" json:"is_accepted"`
}

// ScoreboardScope selects the entries of a contest, optionally narrowed to a user and/or a problem.
type ScoreboardScope struct {
	ContestID int  `json:"contest_id"`
	UserID    *int `json:"user_id,omitempty"`
	ProblemID *int `json:"problem_id,omitempty"`
}

func (s ScoreboardScope) SubmissionFilter() SubmissionFilter {
	return SubmissionFilter{
		ContestID: &s.ContestID,
		UserID:    s.UserID,
		ProblemID: s.ProblemID,
		Ascending: true,
	}
}

type ProblemScore struct {
	ProblemID       int    `json:"problem_id"`
	Alias           string `json:"alias"`
	SubmissionCount int    `json:"submission_cnt"`
	TimePenalty     int    `json:"time_penalty"`
	IsAccepted      bool   `json:"is_accepted"`
}

type ScoreboardRow struct {
	UserID      int    `json:"user_id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Institution string `json:"institution"`

	TotalAccepted  int `json:"total_accepted"`
	TotalPenalty   int `json:"total_penalty"`
	LastSubmission int `json:"last_submission"`

	// ordered like Scoreboard.Problems
	Scores []ProblemScore `json:"scores"`
}

type Scoreboard struct {
	ContestID int `json:"contest_id"`
	// View is the view actually served, which differs from the requested one after unfreezing.
	View     ScoreboardView    `json:"view"`
	Problems []*ContestProblem `json:"problems"`
	Rows     []*ScoreboardRow  `json:"rows"`
}
