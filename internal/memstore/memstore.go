// Package memstore is an in-memory regrader.Store used by tests and local dry runs.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fushar/regrader"
)

var _ regrader.Store = &Store{}

type entryKey struct {
	contestID, userID, problemID int
}

type state struct {
	submissions map[int]*regrader.Submission
	judgings    []*regrader.Judging
	entries     map[regrader.ScoreboardView]map[entryKey]*regrader.ScoreboardEntry
	graders     map[string]*regrader.GraderHeartbeat
}

func (s *state) clone() *state {
	c := &state{
		submissions: make(map[int]*regrader.Submission, len(s.submissions)),
		judgings:    make([]*regrader.Judging, 0, len(s.judgings)),
		entries:     make(map[regrader.ScoreboardView]map[entryKey]*regrader.ScoreboardEntry),
		graders:     make(map[string]*regrader.GraderHeartbeat, len(s.graders)),
	}
	for id, sub := range s.submissions {
		c.submissions[id] = cloneSubmission(sub)
	}
	for _, j := range s.judgings {
		j2 := *j
		c.judgings = append(c.judgings, &j2)
	}
	for view, entries := range s.entries {
		c.entries[view] = make(map[entryKey]*regrader.ScoreboardEntry, len(entries))
		for k, e := range entries {
			e2 := *e
			c.entries[view][k] = &e2
		}
	}
	for id, hb := range s.graders {
		hb2 := *hb
		c.graders[id] = &hb2
	}
	return c
}

// Store keeps mutable records (submissions, judgings, scoreboard entries,
// heartbeats) transactionally and reference records as plain maps.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	st *state

	languages       map[int]*regrader.Language
	users           map[int]*regrader.User
	contests        map[int]*regrader.Contest
	contestCats     map[int][]int
	problems        map[int]*regrader.Problem
	contestProblems []*regrader.ContestProblem
	testcases       map[int][]*regrader.Testcase
	checkers        map[int]*regrader.Checker

	nextSubID int
}

func New() *Store {
	return &Store{
		st: &state{
			submissions: make(map[int]*regrader.Submission),
			entries:     make(map[regrader.ScoreboardView]map[entryKey]*regrader.ScoreboardEntry),
			graders:     make(map[string]*regrader.GraderHeartbeat),
		},
		languages:   make(map[int]*regrader.Language),
		users:       make(map[int]*regrader.User),
		contests:    make(map[int]*regrader.Contest),
		contestCats: make(map[int][]int),
		problems:    make(map[int]*regrader.Problem),
		testcases:   make(map[int][]*regrader.Testcase),
		checkers:    make(map[int]*regrader.Checker),
		nextSubID:   1,
	}
}

// Seeding

func (s *Store) AddLanguage(l *regrader.Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.languages[l.ID] = l
}

func (s *Store) AddUser(u *regrader.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddContest registers a contest open to the given user categories.
func (s *Store) AddContest(c *regrader.Contest, categories ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[c.ID] = c
	s.contestCats[c.ID] = categories
}

func (s *Store) AddProblem(p *regrader.Problem, testcases ...*regrader.Testcase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems[p.ID] = p
	s.testcases[p.ID] = append(s.testcases[p.ID], testcases...)
}

func (s *Store) AddContestProblem(cp *regrader.ContestProblem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contestProblems = append(s.contestProblems, cp)
}

func (s *Store) SetChecker(c *regrader.Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[c.ProblemID] = c
}

// AddSubmission stores sub, assigning the next id when sub.ID is zero.
func (s *Store) AddSubmission(sub *regrader.Submission) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = s.nextSubID
	}
	s.nextSubID = max(s.nextSubID, sub.ID+1)
	s.st.submissions[sub.ID] = cloneSubmission(sub)
	return sub.ID
}

// Transactions

func (s *Store) InTx(ctx context.Context, fn func(regrader.JudgeTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Reference records

func (s *Store) Language(_ context.Context, id int) (*regrader.Language, error) {
	return lookup(s, s.languages, id)
}

func (s *Store) User(_ context.Context, id int) (*regrader.User, error) {
	return lookup(s, s.users, id)
}

func (s *Store) Contest(_ context.Context, id int) (*regrader.Contest, error) {
	return lookup(s, s.contests, id)
}

func (s *Store) Problem(_ context.Context, id int) (*regrader.Problem, error) {
	return lookup(s, s.problems, id)
}

func lookup[T any](s *Store, m map[int]*T, id int) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := m[id]
	if !ok {
		return nil, regrader.ErrNotFound
	}
	v2 := *v
	return &v2, nil
}

func (s *Store) ContestMembers(_ context.Context, contestID int) ([]*regrader.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cats := s.contestCats[contestID]
	var users []*regrader.User
	for _, u := range s.users {
		if slices.Contains(cats, u.CategoryID) {
			u2 := *u
			users = append(users, &u2)
		}
	}
	slices.SortFunc(users, func(a, b *regrader.User) int { return cmp.Compare(a.ID, b.ID) })
	return users, nil
}

func (s *Store) ContestProblems(_ context.Context, contestID int) ([]*regrader.ContestProblem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pbs []*regrader.ContestProblem
	for _, cp := range s.contestProblems {
		if cp.ContestID == contestID {
			cp2 := *cp
			if pb, ok := s.problems[cp.ProblemID]; ok && cp2.Name == "" {
				cp2.Name = pb.Name
			}
			pbs = append(pbs, &cp2)
		}
	}
	slices.SortStableFunc(pbs, func(a, b *regrader.ContestProblem) int { return cmp.Compare(a.Alias, b.Alias) })
	return pbs, nil
}

func (s *Store) ContestProblem(ctx context.Context, contestID, problemID int) (*regrader.ContestProblem, error) {
	pbs, err := s.ContestProblems(ctx, contestID)
	if err != nil {
		return nil, err
	}
	for _, pb := range pbs {
		if pb.ProblemID == problemID {
			return pb, nil
		}
	}
	return nil, regrader.ErrNotFound
}

func (s *Store) Testcases(_ context.Context, problemID int) ([]*regrader.Testcase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tcs := slices.Clone(s.testcases[problemID])
	slices.SortFunc(tcs, func(a, b *regrader.Testcase) int { return cmp.Compare(a.ID, b.ID) })
	return tcs, nil
}

func (s *Store) ProblemChecker(_ context.Context, problemID int) (*regrader.Checker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkers[problemID]
	if !ok {
		return nil, nil
	}
	c2 := *c
	return &c2, nil
}

// Submissions

func (s *Store) Submission(_ context.Context, id int) (*regrader.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.st.submissions[id]
	if !ok {
		return nil, regrader.ErrNotFound
	}
	return cloneSubmission(sub), nil
}

func (s *Store) Submissions(_ context.Context, filter regrader.SubmissionFilter) ([]*regrader.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subs []*regrader.Submission
	for _, sub := range s.st.submissions {
		if !matches(sub, filter) {
			continue
		}
		subs = append(subs, cloneSubmission(sub))
	}
	slices.SortFunc(subs, func(a, b *regrader.Submission) int {
		if filter.Ascending {
			return cmp.Compare(a.ID, b.ID)
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if filter.Offset > 0 {
		subs = subs[min(filter.Offset, len(subs)):]
	}
	if filter.Limit > 0 && len(subs) > filter.Limit {
		subs = subs[:filter.Limit]
	}
	return subs, nil
}

func matches(sub *regrader.Submission, f regrader.SubmissionFilter) bool {
	if f.ID != nil && sub.ID != *f.ID {
		return false
	}
	if f.UserID != nil && sub.UserID != *f.UserID {
		return false
	}
	if f.ContestID != nil && sub.ContestID != *f.ContestID {
		return false
	}
	if f.ProblemID != nil && sub.ProblemID != *f.ProblemID {
		return false
	}
	if f.Verdict != nil && sub.Verdict != *f.Verdict {
		return false
	}
	return true
}

func (s *Store) UpdateSubmission(_ context.Context, id int, upd regrader.SubmissionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.st.submissions[id]
	if !ok {
		return regrader.ErrNotFound
	}
	if upd.Verdict != nil {
		sub.Verdict = *upd.Verdict
	}
	if upd.PendingAction != nil {
		sub.PendingAction = *upd.PendingAction
	}
	if upd.ClearAction != nil && sub.PendingAction == *upd.ClearAction {
		sub.PendingAction = regrader.ActionNone
	}
	if upd.StartJudgeTime != nil {
		t := *upd.StartJudgeTime
		sub.StartJudgeTime = &t
	}
	if upd.EndJudgeTime != nil {
		t := *upd.EndJudgeTime
		sub.EndJudgeTime = &t
	}
	if upd.ReleaseClaim {
		sub.ClaimedBy, sub.ClaimedAt = nil, nil
	}
	if upd.ResetAttempts {
		sub.FailedAttempts, sub.RetryAfter = 0, nil
	}
	return nil
}

func (s *Store) ClaimSubmission(_ context.Context, workerID string, now time.Time, ttl time.Duration, maxAttempts int) (*regrader.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Sorted(maps.Keys(s.st.submissions))
	for _, id := range ids {
		sub := s.st.submissions[id]
		if !sub.Claimable(now, ttl, maxAttempts) {
			continue
		}
		w, t := workerID, now
		sub.ClaimedBy, sub.ClaimedAt = &w, &t
		return cloneSubmission(sub), nil
	}
	return nil, nil
}

func (s *Store) FailClaim(_ context.Context, submissionID int, workerID string, retryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.st.submissions[submissionID]
	if !ok {
		return regrader.ErrNotFound
	}
	if sub.ClaimedBy == nil || *sub.ClaimedBy != workerID {
		return nil
	}
	sub.ClaimedBy, sub.ClaimedAt = nil, nil
	sub.FailedAttempts++
	sub.RetryAfter = &retryAt
	return nil
}

func (s *Store) RequestAction(_ context.Context, submissionID int, action regrader.PendingAction, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.st.submissions[submissionID]
	if !ok {
		return regrader.ErrNotFound
	}
	if sub.ClaimLive(now, ttl) {
		return regrader.ErrSubmissionClaimed
	}
	sub.PendingAction = action
	sub.FailedAttempts, sub.RetryAfter = 0, nil
	return nil
}

// Judgings

func (s *Store) InsertJudging(_ context.Context, j *regrader.Judging) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j2 := *j
	s.st.judgings = append(s.st.judgings, &j2)
	return nil
}

func (s *Store) DeleteJudgings(_ context.Context, submissionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.judgings = slices.DeleteFunc(s.st.judgings, func(j *regrader.Judging) bool {
		return j.SubmissionID == submissionID
	})
	return nil
}

func (s *Store) Judgings(_ context.Context, submissionID int) ([]*regrader.Judging, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var js []*regrader.Judging
	for _, j := range s.st.judgings {
		if j.SubmissionID == submissionID {
			j2 := *j
			js = append(js, &j2)
		}
	}
	slices.SortFunc(js, func(a, b *regrader.Judging) int { return cmp.Compare(a.TestcaseID, b.TestcaseID) })
	return js, nil
}

// Scoreboard

func (s *Store) ScoreboardEntry(_ context.Context, view regrader.ScoreboardView, contestID, userID, problemID int) (*regrader.ScoreboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.entries[view][entryKey{contestID, userID, problemID}]
	if !ok {
		return nil, nil
	}
	e2 := *e
	return &e2, nil
}

func (s *Store) ScoreboardEntries(_ context.Context, view regrader.ScoreboardView, contestID int) ([]*regrader.ScoreboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []*regrader.ScoreboardEntry
	for k, e := range s.st.entries[view] {
		if k.contestID == contestID {
			e2 := *e
			entries = append(entries, &e2)
		}
	}
	slices.SortFunc(entries, func(a, b *regrader.ScoreboardEntry) int {
		return cmp.Or(cmp.Compare(a.UserID, b.UserID), cmp.Compare(a.ProblemID, b.ProblemID))
	})
	return entries, nil
}

func (s *Store) UpsertScoreboardEntry(_ context.Context, view regrader.ScoreboardView, entry *regrader.ScoreboardEntry) error {
	if !view.Valid() {
		return regrader.Statusf(400, "Invalid scoreboard view %q", view)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.entries[view] == nil {
		s.st.entries[view] = make(map[entryKey]*regrader.ScoreboardEntry)
	}
	e := *entry
	s.st.entries[view][entryKey{entry.ContestID, entry.UserID, entry.ProblemID}] = &e
	return nil
}

func (s *Store) DeleteScoreboardEntries(_ context.Context, view regrader.ScoreboardView, scope regrader.ScoreboardScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.st.entries[view], func(k entryKey, _ *regrader.ScoreboardEntry) bool {
		if k.contestID != scope.ContestID {
			return false
		}
		if scope.UserID != nil && k.userID != *scope.UserID {
			return false
		}
		if scope.ProblemID != nil && k.problemID != *scope.ProblemID {
			return false
		}
		return true
	})
	return nil
}

// Graders

func (s *Store) CheckIn(_ context.Context, hb *regrader.GraderHeartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb2 := *hb
	s.st.graders[hb.WorkerID] = &hb2
	return nil
}

func (s *Store) ActiveGraders(_ context.Context, now time.Time) ([]*regrader.GraderHeartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hbs []*regrader.GraderHeartbeat
	for _, hb := range s.st.graders {
		if hb.Alive(now) {
			hb2 := *hb
			hbs = append(hbs, &hb2)
		}
	}
	slices.SortFunc(hbs, func(a, b *regrader.GraderHeartbeat) int { return cmp.Compare(a.Hostname, b.Hostname) })
	return hbs, nil
}

func cloneSubmission(sub *regrader.Submission) *regrader.Submission {
	c := *sub
	if sub.StartJudgeTime != nil {
		t := *sub.StartJudgeTime
		c.StartJudgeTime = &t
	}
	if sub.EndJudgeTime != nil {
		t := *sub.EndJudgeTime
		c.EndJudgeTime = &t
	}
	if sub.ClaimedBy != nil {
		w := *sub.ClaimedBy
		c.ClaimedBy = &w
	}
	if sub.ClaimedAt != nil {
		t := *sub.ClaimedAt
		c.ClaimedAt = &t
	}
	if sub.RetryAfter != nil {
		t := *sub.RetryAfter
		c.RetryAfter = &t
	}
	return &c
}
