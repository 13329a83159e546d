package grader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/fushar/regrader"
	"github.com/fushar/regrader/datastore"
	"github.com/fushar/regrader/eval"
	"github.com/fushar/regrader/eval/tasks"
	"github.com/fushar/regrader/integrations/prometheus"
	"github.com/fushar/regrader/internal/config"
	"github.com/google/uuid"
)

// Options wires a Handler to its collaborators.
type Options struct {
	Store   regrader.Store
	Storage *datastore.StorageManager
	Sandbox eval.Sandbox
	// Runner runs compilers on the host.
	Runner eval.CommandRunner
	Conf   config.GraderConf
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler polls the store for queued submissions and judges them one at a time.
type Handler struct {
	store    regrader.Store
	dm       *datastore.StorageManager
	sandbox  eval.Sandbox
	compiler *tasks.Compiler
	executor *tasks.Executor

	conf     config.GraderConf
	logger   *slog.Logger
	now      func() time.Time
	workerID string

	lastCheckIn time.Time

	langCache *theine.LoadingCache[int, *regrader.Language]

	wakeChan chan struct{}
}

func NewHandler(opts Options) (*Handler, error) {
	if opts.Store == nil || opts.Storage == nil || opts.Sandbox == nil || opts.Runner == nil {
		return nil, regrader.ErrMissingRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	h := &Handler{
		store:   opts.Store,
		dm:      opts.Storage,
		sandbox: opts.Sandbox,
		compiler: &tasks.Compiler{
			Store:  opts.Storage,
			Runner: opts.Runner,
			Logger: logger,
		},
		executor: &tasks.Executor{
			Store:         opts.Storage,
			Sandbox:       opts.Sandbox,
			OutputLimitKB: opts.Conf.OutputLimitKB,
			Logger:        logger,
		},
		conf:     opts.Conf,
		logger:   logger,
		now:      now,
		workerID: uuid.NewString(),
		wakeChan: make(chan struct{}, 1),
	}

	langCache, err := theine.NewBuilder[int, *regrader.Language](100).BuildWithLoader(func(ctx context.Context, id int) (theine.Loaded[*regrader.Language], error) {
		lang, err := h.store.Language(ctx, id)
		if err != nil {
			return theine.Loaded[*regrader.Language]{}, err
		}
		return theine.Loaded[*regrader.Language]{
			Value: lang,
			Cost:  1,
			TTL:   1 * time.Minute,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not build language cache: %w", err)
	}
	h.langCache = langCache

	return h, nil
}

// WorkerID identifies this handler in claims and heartbeats.
func (h *Handler) WorkerID() string {
	return h.workerID
}

// Wake makes the handler poll right away instead of waiting for the next tick.
func (h *Handler) Wake() {
	select {
	case h.wakeChan <- struct{}{}:
	default:
	}
}

// Start checks in and drains the queue on every tick until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	interval := h.conf.PollInterval.Duration
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.logger.InfoContext(ctx, "Grader started",
		slog.String("worker_id", h.workerID),
		slog.String("hostname", h.conf.Hostname),
	)
	h.Wake()

	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			h.logger.InfoContext(context.WithoutCancel(ctx), "Grader stopped")
			return nil
		case <-ticker.C:
		case <-h.wakeChan:
		}

		if _, err := h.RunOnce(ctx); err != nil {
			h.logger.WarnContext(ctx, "Grader iteration failed", slog.Any("err", err))
		}
	}
}

// RunOnce checks in and judges submissions until the queue is empty.
// It returns how many submissions were judged successfully.
func (h *Handler) RunOnce(ctx context.Context) (int, error) {
	if err := h.CheckIn(ctx); err != nil {
		h.logger.WarnContext(ctx, "Couldn't check in", slog.Any("err", err))
	}

	judged := 0
	for ctx.Err() == nil {
		sub, err := h.store.ClaimSubmission(ctx, h.workerID, h.now(), h.leaseTTL(), h.conf.MaxAttempts)
		if err != nil {
			return judged, fmt.Errorf("couldn't claim submission: %w", err)
		}
		if sub == nil {
			h.logger.DebugContext(ctx, "Waiting for new submission")
			return judged, nil
		}

		if err := h.judge(ctx, sub); err != nil {
			h.failClaim(ctx, sub, err)
			// held back by retry_after, so the next claim moves past it
			continue
		}
		judged++

		if err := h.CheckIn(ctx); err != nil {
			h.logger.WarnContext(ctx, "Couldn't check in", slog.Any("err", err))
		}
	}
	return judged, nil
}

// failClaim hands a submission back after an infrastructure failure.
func (h *Handler) failClaim(ctx context.Context, sub *regrader.Submission, judgeErr error) {
	attempt := sub.FailedAttempts + 1
	logger := h.logger.With(slog.Int("submission_id", sub.ID), slog.Int("attempt", attempt))
	if limit := h.conf.MaxAttempts; limit > 0 && attempt >= limit {
		logger.ErrorContext(ctx, "Couldn't judge submission, giving up until it is regraded", slog.Any("err", judgeErr))
	} else {
		logger.WarnContext(ctx, "Couldn't judge submission, will retry", slog.Any("err", judgeErr))
	}

	retryAt := h.now().Add(h.retryDelay())
	if err := h.store.FailClaim(context.WithoutCancel(ctx), sub.ID, h.workerID, retryAt); err != nil {
		logger.WarnContext(ctx, "Couldn't release claim", slog.Any("err", err))
	}
}

// CheckIn refreshes this grader's heartbeat.
func (h *Handler) CheckIn(ctx context.Context) error {
	now := h.now()
	if err := h.store.CheckIn(ctx, &regrader.GraderHeartbeat{
		WorkerID:     h.workerID,
		Hostname:     h.conf.Hostname,
		LastActivity: now,
		LeaseUntil:   now.Add(h.leaseTTL()),
	}); err != nil {
		return err
	}
	h.lastCheckIn = now
	prometheus.ObserveHeartbeat(now)
	return nil
}

// keepAlive checks in during a long judging once a third of the lease has passed.
func (h *Handler) keepAlive(ctx context.Context) {
	if h.now().Sub(h.lastCheckIn) < h.leaseTTL()/3 {
		return
	}
	if err := h.CheckIn(ctx); err != nil {
		h.logger.WarnContext(ctx, "Couldn't check in", slog.Any("err", err))
	}
}

func (h *Handler) leaseTTL() time.Duration {
	if h.conf.LeaseTTL.Duration > 0 {
		return h.conf.LeaseTTL.Duration
	}
	return 30 * time.Second
}

func (h *Handler) retryDelay() time.Duration {
	if h.conf.RetryDelay.Duration > 0 {
		return h.conf.RetryDelay.Duration
	}
	return 30 * time.Second
}

func (h *Handler) language(ctx context.Context, id int) (*regrader.Language, error) {
	return h.langCache.Get(ctx, id)
}
