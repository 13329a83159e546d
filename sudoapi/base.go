// Package sudoapi is the administrative layer on top of the store: regrade
// and ignore requests, scoreboard queries and grader status.
package sudoapi

import (
	"context"
	"time"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/datastore"
)

// Grader is the part of the grader the administrative layer talks to.
type Grader interface {
	Wake()
}

type BaseAPI struct {
	store regrader.Store
	mgr   *datastore.StorageManager

	grader Grader

	// leaseTTL is how long a grader claim stays valid.
	leaseTTL time.Duration
	now      func() time.Time
}

func GetBaseAPI(store regrader.Store, mgr *datastore.StorageManager, leaseTTL time.Duration) *BaseAPI {
	return &BaseAPI{
		store:    store,
		mgr:      mgr,
		leaseTTL: leaseTTL,
		now:      time.Now,
	}
}

// RegisterGrader lets requests wake a grader running in the same process.
func (s *BaseAPI) RegisterGrader(g Grader) {
	s.grader = g
}

func (s *BaseAPI) wakeGrader() {
	if s.grader != nil {
		s.grader.Wake()
	}
}

// ActiveGraders lists graders whose heartbeat lease has not expired.
func (s *BaseAPI) ActiveGraders(ctx context.Context) ([]*regrader.GraderHeartbeat, error) {
	graders, err := s.store.ActiveGraders(ctx, s.now())
	if err != nil {
		return nil, regrader.WrapStatus(err, 500, "Couldn't get active graders")
	}
	return graders, nil
}
