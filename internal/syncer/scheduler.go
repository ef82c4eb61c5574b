package syncer

import (
	"context"
	"errors"
	"log"

	"github.com/devoll/rhga-schedule-bot/internal/sheets"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Runner is what a scheduled cycle executes.
type Runner interface {
	SyncAll(ctx context.Context) ([]Report, []SheetFailure)
}

// Scheduler fires a full sync on a cron spec with a seconds field.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
}

// NewScheduler registers the sync job. With allowOverlap false a fire is
// skipped while the previous cycle is still running.
func NewScheduler(runner Runner, spec string, allowOverlap bool) (*Scheduler, error) {
	opts := []cron.Option{cron.WithSeconds()}
	if !allowOverlap {
		opts = append(opts, cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	}
	c := cron.New(opts...)

	s := &Scheduler{cron: c, runner: runner, spec: spec}
	if _, err := c.AddFunc(spec, s.RunCycle); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	log.Printf("⏰ Sync scheduled with spec %q", s.spec)
	s.cron.Start()
}

// Stop prevents new fires and returns a context done when running cycles end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunCycle is one scheduled fire. Errors end up in the log only.
func (s *Scheduler) RunCycle() {
	cycleID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] ❌ Sync cycle panicked: %v", cycleID, r)
		}
	}()

	log.Printf("[%s] Running scheduled sync...", cycleID)
	reports, failures := s.runner.SyncAll(context.Background())
	for _, f := range failures {
		logFailure(cycleID, f)
	}
	for _, rep := range reports {
		log.Printf("[%s] %s", cycleID, rep.Message)
	}
	log.Printf("[%s] Scheduled sync finished with %d failed sheet(s)", cycleID, len(failures))
}

func logFailure(cycleID string, f SheetFailure) {
	var te *sheets.TransportError
	if errors.As(f.Err, &te) {
		log.Printf("[%s] ❌ Failed to sync sheet '%s' (%s): %v [url=%s status=%d latency=%s]",
			cycleID, f.Sheet, Classify(f.Err), f.Err, te.URL, te.StatusCode, te.Latency)
		return
	}
	log.Printf("[%s] ❌ Failed to sync sheet '%s' (%s): %v", cycleID, f.Sheet, Classify(f.Err), f.Err)
}
