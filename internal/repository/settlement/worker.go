package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
)

// Settler completes the payout of an escrowed intent and releases intents
// whose token transfer never reported back.
type Settler interface {
	SettleEscrowed(ctx context.Context, id uuid.UUID) error
	// ReleaseReserved fails with an error wrapping ErrStateConflict when the
	// intent left Reserved in the meantime.
	ReleaseReserved(ctx context.Context, id uuid.UUID) error
}

// Worker retries the payouts of escrowed intents on every tick.
type Worker struct {
	journal        Journal
	settler        Settler
	interval       time.Duration
	batchSize      int
	reserveTimeout time.Duration
	now            func() time.Time
	logger         log.Logger
}

type WorkerOpts struct {
	Journal   Journal
	Settler   Settler
	Interval  time.Duration
	BatchSize int
	// ReserveTimeout is how long an intent may stay Reserved before it is
	// released. Another process may still be transferring its tokens until
	// then.
	ReserveTimeout time.Duration
	Now            func() time.Time
	Logger         log.Logger
}

func NewWorker(opts WorkerOpts) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ReserveTimeout <= 0 {
		opts.ReserveTimeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Worker{
		journal:        opts.Journal,
		settler:        opts.Settler,
		interval:       opts.Interval,
		batchSize:      opts.BatchSize,
		reserveTimeout: opts.ReserveTimeout,
		now:            opts.Now,
		logger:         opts.Logger.With("module", "settlement"),
	}
}

// Report counts the outcomes of one pass.
type Report struct {
	Settled  int
	Failed   int
	Released int
}

// RunOnce releases reserved intents older than the reserve timeout, then
// attempts every escrowed intent, paging through the journal batchSize
// intents at a time.
func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	cutoff := w.now().Add(-w.reserveTimeout)
	err := w.each(ctx, Reserved, func(intent Intent) {
		if intent.UpdatedAt.After(cutoff) {
			return
		}
		err := w.settler.ReleaseReserved(ctx, intent.ID)
		switch {
		case errors.Is(err, ErrStateConflict):
		case err != nil:
			w.logger.Error("releasing reserved intent", "intent", intent.ID, "owner", intent.Owner, "err", err)
		default:
			report.Released++
			w.logger.Info("reserved intent released", "intent", intent.ID, "owner", intent.Owner, "quantity", intent.Quantity)
		}
	})
	if err != nil {
		return report, err
	}
	err = w.each(ctx, Escrowed, func(intent Intent) {
		if err := w.settler.SettleEscrowed(ctx, intent.ID); err != nil {
			report.Failed++
			w.logger.Error("payout retry failed", "intent", intent.ID, "owner", intent.Owner, "payout", intent.Payout, "err", err)
			return
		}
		report.Settled++
		w.logger.Info("payout settled", "intent", intent.ID, "owner", intent.Owner, "payout", intent.Payout)
	})
	return report, err
}

func (w *Worker) each(ctx context.Context, state State, fn func(Intent)) error {
	page := Page{Limit: w.batchSize}
	for {
		intents, err := w.journal.ListByState(ctx, state, page)
		if err != nil {
			return err
		}
		for _, intent := range intents {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(intent)
		}
		if len(intents) < page.Limit {
			return nil
		}
		page = page.Next(intents[len(intents)-1])
	}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("listing settlement intents", "err", err)
			}
		}
	}
}
