package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

var ErrAlreadyRunning = errors.New("expiry worker already running")

// Lifecycle is the part of the booking service the sweep drives.
type Lifecycle interface {
	ExpireUnpaid(ctx context.Context, id string) (*models.Booking, error)
	ExpirePending(ctx context.Context, id string) (*models.Booking, error)
}

// Source lists sweep candidates.
type Source interface {
	ListUnpaidExpired(ctx context.Context, now time.Time) ([]*models.Booking, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Booking, error)
}

type Config struct {
	// ScanInterval is the time between sweeps.
	ScanInterval time.Duration
	// PendingTTL is how long a booking may wait for an admin decision.
	PendingTTL time.Duration
}

func DefaultConfig() Config {
	return Config{ScanInterval: time.Hour, PendingTTL: 24 * time.Hour}
}

// SweepResult counts what one pass did.
type SweepResult struct {
	StartedAt     time.Time `json:"started_at"`
	AutoCancelled int       `json:"auto_cancelled"`
	AutoRejected  int       `json:"auto_rejected"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Interrupted   bool      `json:"interrupted"`
}

type Stats struct {
	IsRunning          bool        `json:"is_running"`
	Sweeps             int64       `json:"sweeps"`
	TotalAutoCancelled int64       `json:"total_auto_cancelled"`
	TotalAutoRejected  int64       `json:"total_auto_rejected"`
	LastSweep          SweepResult `json:"last_sweep"`
}

// ExpiryWorker enforces the payment and admin-response deadlines on a fixed cadence.
type ExpiryWorker struct {
	lifecycle Lifecycle
	source    Source
	config    Config
	clock     utils.Clock
	log       *logger.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	sweepMu sync.Mutex
	running bool
	stats   Stats
}

func NewExpiryWorker(lifecycle Lifecycle, source Source, config Config, clock utils.Clock, log *logger.Logger) *ExpiryWorker {
	def := DefaultConfig()
	if config.ScanInterval <= 0 {
		config.ScanInterval = def.ScanInterval
	}
	if config.PendingTTL <= 0 {
		config.PendingTTL = def.PendingTTL
	}
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &ExpiryWorker{
		lifecycle: lifecycle,
		source:    source,
		config:    config,
		clock:     clock,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	// A stopped worker closed the previous channel.
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.running = true
	w.mu.Unlock()

	w.log.LogSweep("START", fmt.Sprintf("Expiry worker running every %s", w.config.ScanInterval))

	w.wg.Add(1)
	go w.loop(ctx, stop)
	return nil
}

// Stop signals the loop and waits. A sweep in progress finishes the booking
// it is transitioning and skips the rest.
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop := w.stopCh
	w.mu.Unlock()

	close(stop)
	w.wg.Wait()
	w.log.LogSweep("STOP", "Expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context, stop <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.sweepLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.sweepLogged(ctx)
		}
	}
}

func (w *ExpiryWorker) sweepLogged(ctx context.Context) {
	res, err := w.SweepOnce(ctx)
	if err != nil {
		w.log.Error("SWEEP", fmt.Sprintf("Sweep failed: %v", err))
		return
	}
	if res.AutoCancelled+res.AutoRejected+res.Failed > 0 {
		w.log.LogSweep("DONE", fmt.Sprintf("cancelled=%d rejected=%d skipped=%d failed=%d",
			res.AutoCancelled, res.AutoRejected, res.Skipped, res.Failed))
	}
}

func (w *ExpiryWorker) stopping(ctx context.Context) bool {
	w.mu.Lock()
	stop := w.stopCh
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// SweepOnce runs a single pass. A failing booking is logged and counted; it
// never aborts the rest of the batch. Re-running is harmless: bookings that
// already moved on are counted as skipped.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (SweepResult, error) {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()

	now := w.clock.Now().UTC()
	res := SweepResult{StartedAt: now}

	unpaid, err := w.source.ListUnpaidExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list unpaid approvals: %w", err)
	}
	stale, err := w.source.ListStalePending(ctx, now.Add(-w.config.PendingTTL))
	if err != nil {
		return res, fmt.Errorf("list stale pending: %w", err)
	}

	type job struct {
		booking *models.Booking
		kind    string
		run     func(context.Context, string) (*models.Booking, error)
		count   *int
	}
	jobs := make([]job, 0, len(unpaid)+len(stale))
	for _, b := range unpaid {
		jobs = append(jobs, job{b, "UNPAID", w.lifecycle.ExpireUnpaid, &res.AutoCancelled})
	}
	for _, b := range stale {
		jobs = append(jobs, job{b, "PENDING", w.lifecycle.ExpirePending, &res.AutoRejected})
	}

	for _, j := range jobs {
		if w.stopping(ctx) {
			res.Interrupted = true
			break
		}
		// Detached so shutdown cannot cut a transition in half.
		_, err := j.run(context.WithoutCancel(ctx), j.booking.ID)
		switch {
		case err == nil:
			*j.count++
			w.log.LogSweep(j.kind, fmt.Sprintf("booking %s expired", j.booking.ID))
		case errors.Is(err, models.ErrStaleState), errors.Is(err, models.ErrInvalidTransition):
			res.Skipped++
		default:
			res.Failed++
			w.log.Error("SWEEP", fmt.Sprintf("Failed to expire booking %s: %v", j.booking.ID, err))
		}
	}

	w.record(res)
	return res, nil
}

func (w *ExpiryWorker) record(res SweepResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Sweeps++
	w.stats.TotalAutoCancelled += int64(res.AutoCancelled)
	w.stats.TotalAutoRejected += int64(res.AutoRejected)
	w.stats.LastSweep = res
}

func (w *ExpiryWorker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.IsRunning = w.running
	return s
}
