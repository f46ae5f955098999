package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
)

type settlerFunc func(ctx context.Context, id uuid.UUID) error

func (f settlerFunc) SettleEscrowed(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }

func (f settlerFunc) ReleaseReserved(ctx context.Context, id uuid.UUID) error {
	return errors.New("unexpected release")
}

// journalSettler settles through the journal alone, failing the intents in
// failing.
type journalSettler struct {
	journal settlement.Journal
	failing map[uuid.UUID]bool
}

func (s *journalSettler) SettleEscrowed(ctx context.Context, id uuid.UUID) error {
	if s.failing[id] {
		return errors.New("payout failed")
	}
	return s.journal.Transition(ctx, id, settlement.Escrowed, settlement.Settled, "")
}

func (s *journalSettler) ReleaseReserved(ctx context.Context, id uuid.UUID) error {
	return s.journal.Transition(ctx, id, settlement.Reserved, settlement.Released, "stale")
}

func escrow(t *testing.T, j settlement.Journal, n int) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		id, err := j.Reserve(ctx, settlement.Intent{TokenID: "00", Owner: "owner", Quantity: 1, Payout: 10})
		require.NoError(t, err)
		require.NoError(t, j.Transition(ctx, id, settlement.Reserved, settlement.Escrowed, ""))
		ids[i] = id
	}
	return ids
}

func TestWorkerRunOnce(t *testing.T) {
	j := settlement.NewMemoryJournal()
	ids := escrow(t, j, 3)
	failing := ids[1]

	w := settlement.NewWorker(settlement.WorkerOpts{
		Journal: j,
		Settler: settlerFunc(func(ctx context.Context, id uuid.UUID) error {
			if id == failing {
				return errors.New("payout failed")
			}
			return j.Transition(ctx, id, settlement.Escrowed, settlement.Settled, "")
		}),
		BatchSize: 10,
		Logger:    log.TestingLogger(),
	})

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settlement.Report{Settled: 2, Failed: 1}, report)

	left, err := j.ListByState(context.Background(), settlement.Escrowed, settlement.Page{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, failing, left[0].ID)
}

func TestWorkerPagesPastFailingIntents(t *testing.T) {
	j := settlement.NewMemoryJournal()
	ids := escrow(t, j, 5)
	settler := &journalSettler{journal: j, failing: map[uuid.UUID]bool{}}
	// the oldest intents fill a whole batch and never settle
	page, err := j.ListByState(context.Background(), settlement.Escrowed, settlement.Page{Limit: 2})
	require.NoError(t, err)
	for _, intent := range page {
		settler.failing[intent.ID] = true
	}

	w := settlement.NewWorker(settlement.WorkerOpts{
		Journal:   j,
		Settler:   settler,
		BatchSize: 2,
		Logger:    log.TestingLogger(),
	})
	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settlement.Report{Settled: 3, Failed: 2}, report)

	for _, id := range ids {
		intent, err := j.Get(context.Background(), id)
		require.NoError(t, err)
		if settler.failing[id] {
			assert.Equal(t, settlement.Escrowed, intent.State)
		} else {
			assert.Equal(t, settlement.Settled, intent.State)
		}
	}
}

func TestWorkerReleasesStaleReservations(t *testing.T) {
	ctx := context.Background()
	j := settlement.NewMemoryJournal()
	stale, err := j.Reserve(ctx, settlement.Intent{TokenID: "00", Owner: "owner", Quantity: 1, Payout: 10})
	require.NoError(t, err)

	now := time.Now()
	w := settlement.NewWorker(settlement.WorkerOpts{
		Journal:        j,
		Settler:        &journalSettler{journal: j},
		ReserveTimeout: time.Minute,
		Now:            func() time.Time { return now },
		Logger:         log.TestingLogger(),
	})
	report, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Report{}, report)

	now = now.Add(2 * time.Minute)
	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Report{Released: 1}, report)

	intent, err := j.Get(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, settlement.Released, intent.State)
}

func TestWorkerRunStopsWithContext(t *testing.T) {
	j := settlement.NewMemoryJournal()
	escrow(t, j, 1)

	var (
		mtx   sync.Mutex
		calls int
	)
	w := settlement.NewWorker(settlement.WorkerOpts{
		Journal: j,
		Settler: settlerFunc(func(ctx context.Context, id uuid.UUID) error {
			mtx.Lock()
			defer mtx.Unlock()
			calls++
			return j.Transition(ctx, id, settlement.Escrowed, settlement.Settled, "")
		}),
		Interval: 5 * time.Millisecond,
		Logger:   log.NewNopLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
