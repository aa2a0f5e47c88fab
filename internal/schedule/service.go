package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ServiceConfig holds runtime parameters for the dispatch loop.
type ServiceConfig struct {
	PollInterval    time.Duration
	Batch           int
	DefaultTimezone string
	// DrainMax caps the immediate-run IDs taken per cycle so a flooded
	// control plane cannot starve scheduled jobs.
	DrainMax int
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PollInterval:    2 * time.Second,
		Batch:           20,
		DefaultTimezone: "Asia/Taipei",
		DrainMax:        50,
	}
}

// Service runs the poll-and-dispatch loop: each cycle drains queued immediate
// runs, then fetches due rows and dispatches each over its channel. Dispatch
// is sequential within a cycle; outgoing concurrency lives inside the Sender.
type Service struct {
	store  JobStore
	sender Sender
	logger *slog.Logger
	cfg    ServiceConfig

	queue    *RunQueue
	inflight *Inflight

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a Service. The sender fans out to the per-channel
// transports; the store is the schedule_jobs table.
func NewService(store JobStore, sender Sender, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 20
	}
	if cfg.DrainMax <= 0 {
		cfg.DrainMax = 50
	}
	return &Service{
		store:    store,
		sender:   sender,
		logger:   logger,
		cfg:      cfg,
		queue:    NewRunQueue(),
		inflight: NewInflight(),
	}
}

// QueueImmediate enqueues a job ID for dispatch on the next cycle, bypassing
// its schedule. The job's stored next_run_at is untouched until the dispatch
// itself completes.
func (s *Service) QueueImmediate(id int64) {
	s.queue.Enqueue(id)
	s.logger.Info("immediate run queued", "job_id", id)
}

// Start launches the poll loop.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.pollLoop(ctx)

	s.logger.Info("scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"batch", s.cfg.Batch,
		"default_timezone", s.cfg.DefaultTimezone,
	)
}

// Stop signals the loop to stop and waits for the in-progress cycle to
// finish. A dispatch already underway completes and records its outcome.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Service) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one poll cycle: immediate runs first, then due rows. Duplicate
// immediate IDs in one drain collapse to a single dispatch; an ID whose job
// is still in flight from a concurrent cycle keeps exactly one instance
// queued for the next cycle.
func (s *Service) Tick(ctx context.Context) {
	seen := make(map[int64]bool)
	for _, id := range s.queue.Drain(s.cfg.DrainMax) {
		if seen[id] {
			s.logger.Info("immediate run already queued this cycle, dropping duplicate", "job_id", id)
			continue
		}
		seen[id] = true

		job, err := s.store.FetchByID(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("immediate run: fetch failed", "job_id", id, "error", err)
			continue
		}
		if job == nil {
			s.logger.Warn("immediate run: job not found", "job_id", id)
			continue
		}
		if !s.dispatch(job, true) {
			s.queue.Enqueue(id)
		}
	}

	due, err := s.store.FetchDue(ctx, s.cfg.Batch)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("failed to fetch due jobs", "error", err)
		return
	}
	for i := range due {
		s.dispatch(&due[i], false)
	}
}

// dispatch guards against overlapping runs of the same job, then runs the
// send and its finalization synchronously. Returns false when the job was
// already in flight.
func (s *Service) dispatch(job *Job, immediate bool) bool {
	if !s.inflight.TryAcquire(job.ID) {
		s.logger.Warn("job already inflight, skipping", "job_id", job.ID, "name", job.Name)
		return false
	}
	defer s.inflight.Release(job.ID)
	s.run(job, immediate)
	return true
}

func (s *Service) run(job *Job, immediate bool) {
	// The dispatch gets its own context: a shutdown signal mid-cycle must
	// not abort the send or lose the outcome write.
	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout()+10*time.Second)
	defer cancel()

	prefix := ""
	if immediate {
		prefix = "[IMMEDIATE] "
	}
	s.logger.Info(prefix+"dispatching",
		"job_id", job.ID,
		"name", job.Name,
		"channel", job.ChannelType(),
		"target", job.Target(),
		"payload", truncate(job.PayloadString(), 120),
	)

	res := s.sender.Send(ctx, job)
	if res.OK {
		s.logger.Info("SUCCESS", "job_id", job.ID, "name", job.Name,
			"code", codeValue(res.Code), "detail", res.Detail)
		s.finalizeSuccess(ctx, job)
		return
	}

	s.logger.Warn("FAILED", "job_id", job.ID, "name", job.Name,
		"code", codeValue(res.Code), "detail", res.Detail)
	s.finalizeFailure(ctx, job)
}

// finalizeSuccess re-reads the row so edits made during a slow send are
// honored, then disables spent one-shots, advances recurring jobs, and
// pauses (disables) jobs with no further occurrence.
func (s *Service) finalizeSuccess(ctx context.Context, job *Job) {
	fresh, err := s.store.FetchByID(ctx, job.ID)
	if err != nil {
		s.logger.Error("post-dispatch fetch failed", "job_id", job.ID, "error", err)
		return
	}
	if fresh == nil {
		s.logger.Warn("job deleted during dispatch", "job_id", job.ID)
		return
	}

	if fresh.Type() == TypeOnce {
		if err := s.store.MarkSuccess(ctx, fresh.ID, nil, true); err != nil {
			s.logger.Error("failed to disable one-shot job", "job_id", fresh.ID, "error", err)
			return
		}
		s.logger.Info("one-shot complete, disabled", "job_id", fresh.ID, "name", fresh.Name)
		return
	}

	next := NextRun(fresh, time.Now(), s.cfg.DefaultTimezone)
	if err := s.store.MarkSuccess(ctx, fresh.ID, next, next == nil); err != nil {
		s.logger.Error("failed to record success", "job_id", fresh.ID, "error", err)
		return
	}
	if next == nil {
		s.logger.Warn("PAUSED: no next occurrence, job disabled", "job_id", fresh.ID, "name", fresh.Name)
		return
	}
	s.logger.Info("Next:", "job_id", fresh.ID, "name", fresh.Name, "at", next.Format("2006-01-02 15:04:05"))
}

// finalizeFailure schedules a retry when the job allows one, otherwise
// advances past the failed occurrence.
func (s *Service) finalizeFailure(ctx context.Context, job *Job) {
	if job.MaxRetries > 0 {
		if err := s.store.ScheduleRetry(ctx, job.ID, job.Backoff()); err != nil {
			s.logger.Error("failed to schedule retry", "job_id", job.ID, "error", err)
			return
		}
		s.logger.Info("Retry scheduled at:", "job_id", job.ID, "name", job.Name,
			"backoff", job.Backoff())
		return
	}

	fresh, err := s.store.FetchByID(ctx, job.ID)
	if err != nil {
		s.logger.Error("post-dispatch fetch failed", "job_id", job.ID, "error", err)
		return
	}
	if fresh == nil {
		s.logger.Warn("job deleted during dispatch", "job_id", job.ID)
		return
	}

	if fresh.Type() == TypeOnce {
		if err := s.store.MarkSuccess(ctx, fresh.ID, nil, true); err != nil {
			s.logger.Error("failed to disable one-shot job", "job_id", fresh.ID, "error", err)
		}
		s.logger.Warn("one-shot failed with no retry, disabled", "job_id", fresh.ID, "name", fresh.Name)
		return
	}

	next := NextRun(fresh, time.Now(), s.cfg.DefaultTimezone)
	if err := s.store.MarkSuccess(ctx, fresh.ID, next, next == nil); err != nil {
		s.logger.Error("failed to advance after failure", "job_id", fresh.ID, "error", err)
		return
	}
	if next == nil {
		s.logger.Warn("PAUSED: no next occurrence, job disabled", "job_id", fresh.ID, "name", fresh.Name)
		return
	}
	s.logger.Info("Next (no retry):", "job_id", fresh.ID, "name", fresh.Name,
		"at", next.Format("2006-01-02 15:04:05"))
}

func codeValue(c *int) int {
	if c == nil {
		return 0
	}
	return *c
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
