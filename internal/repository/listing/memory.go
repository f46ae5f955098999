package listing

import (
	"context"
	"errors"
	"sync"

	"github.com/google/btree"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

const btreeDegree = 32

var errTxnDone = errors.New("listing transaction already finished")

// MemoryStore keeps listings in a btree ordered by listing key. A Txn works on
// a copy-on-write clone that replaces the committed tree on Commit.
type MemoryStore[T model.TokenID, A model.TokenAmount] struct {
	mtx  sync.Mutex
	tree *btree.BTreeG[*record[T, A]]
}

var _ Store[model.TokenIDU8, uint64] = (*MemoryStore[model.TokenIDU8, uint64])(nil)

func lessRecord[T model.TokenID, A model.TokenAmount](a, b *record[T, A]) bool {
	return compareKeys(a.Key, b.Key) < 0
}

func NewMemoryStore[T model.TokenID, A model.TokenAmount]() *MemoryStore[T, A] {
	return &MemoryStore[T, A]{
		tree: btree.NewG[*record[T, A]](btreeDegree, lessRecord[T, A]),
	}
}

func (s *MemoryStore[T, A]) Begin(ctx context.Context) (Txn[T, A], error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return &memoryTxn[T, A]{store: s, tree: s.tree.Clone()}, nil
}

// Len returns the number of stored listings, including sold out ones.
func (s *MemoryStore[T, A]) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.tree.Len()
}

type memoryTxn[T model.TokenID, A model.TokenAmount] struct {
	store *MemoryStore[T, A]
	tree  *btree.BTreeG[*record[T, A]]
	done  bool
}

func (t *memoryTxn[T, A]) get(key model.ListingKey[T]) (*record[T, A], bool) {
	return t.tree.Get(&record[T, A]{Key: key})
}

func (t *memoryTxn[T, A]) AddListing(ctx context.Context, key model.ListingKey[T], price model.Amount, quantity A) (bool, error) {
	if t.done {
		return false, errTxnDone
	}
	if _, ok := t.get(key); ok {
		return false, nil
	}
	t.tree.ReplaceOrInsert(&record[T, A]{
		Key:     key,
		Listing: model.Listing[A]{Quantity: quantity, Price: price},
	})
	return true, nil
}

func (t *memoryTxn[T, A]) GetListing(ctx context.Context, key model.ListingKey[T]) (*model.Listing[A], error) {
	if t.done {
		return nil, errTxnDone
	}
	rec, ok := t.get(key)
	if !ok {
		return nil, nil
	}
	l := rec.Listing
	return &l, nil
}

func (t *memoryTxn[T, A]) PutListing(ctx context.Context, key model.ListingKey[T], listing model.Listing[A]) error {
	if t.done {
		return errTxnDone
	}
	if _, ok := t.get(key); !ok {
		return nil
	}
	// records are shared with the committed tree, so replace instead of mutating
	t.tree.ReplaceOrInsert(&record[T, A]{Key: key, Listing: listing})
	return nil
}

func (t *memoryTxn[T, A]) DecreaseQuantity(ctx context.Context, key model.ListingKey[T], delta A) error {
	if t.done {
		return errTxnDone
	}
	rec, ok := t.get(key)
	if !ok {
		return nil
	}
	t.tree.ReplaceOrInsert(&record[T, A]{Key: key, Listing: rec.Listing.Decrease(delta)})
	return nil
}

func (t *memoryTxn[T, A]) ListActive(ctx context.Context) ([]model.ListingItem[T, A], error) {
	if t.done {
		return nil, errTxnDone
	}
	items := make([]model.ListingItem[T, A], 0, t.tree.Len())
	t.tree.Ascend(func(rec *record[T, A]) bool {
		if rec.Listing.IsActive() {
			items = append(items, model.NewListingItem(rec.Key, rec.Listing))
		}
		return true
	})
	return items, nil
}

func (t *memoryTxn[T, A]) Commit() error {
	if t.done {
		return errTxnDone
	}
	t.done = true
	t.store.mtx.Lock()
	defer t.store.mtx.Unlock()
	t.store.tree = t.tree
	return nil
}

func (t *memoryTxn[T, A]) Rollback() error {
	t.done = true
	return nil
}
