package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryJournal struct {
	mtx     sync.Mutex
	intents map[uuid.UUID]Intent
	now     func() time.Time
}

var _ Journal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{intents: make(map[uuid.UUID]Intent), now: time.Now}
}

func (j *MemoryJournal) Reserve(ctx context.Context, intent Intent) (uuid.UUID, error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	intent.ID = uuid.New()
	intent.State = Reserved
	intent.CreatedAt = j.now()
	intent.UpdatedAt = intent.CreatedAt
	j.intents[intent.ID] = intent
	return intent.ID, nil
}

func (j *MemoryJournal) Get(ctx context.Context, id uuid.UUID) (*Intent, error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	intent, ok := j.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return &intent, nil
}

func (j *MemoryJournal) Transition(ctx context.Context, id uuid.UUID, from, to State, lastError string) error {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	intent, ok := j.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	if intent.State != from {
		return fmt.Errorf("%w: %s is %s, want %s", ErrStateConflict, id, intent.State, from)
	}
	intent.State = to
	intent.LastError = lastError
	intent.UpdatedAt = j.now()
	j.intents[id] = intent
	return nil
}

func (j *MemoryJournal) ListByState(ctx context.Context, state State, page Page) ([]Intent, error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	var out []Intent
	for _, intent := range j.intents {
		if intent.State == state && page.after(intent) {
			out = append(out, intent)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID.String() < out[b].ID.String()
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (j *MemoryJournal) Outstanding(ctx context.Context, listing Listing) (uint64, error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	var sum uint64
	for _, intent := range j.intents {
		if intent.State.Open() && intent.Listing() == listing {
			sum += intent.Quantity
		}
	}
	return sum, nil
}
