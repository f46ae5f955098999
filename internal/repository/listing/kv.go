package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

const listingKeyPrefix = "listing"

// KVStore persists listings in a tm-db database. Keys are orderedcode
// encodings of (contract index, contract subindex, token id, owner), so
// iteration order is key order.
type KVStore[T model.TokenID, A model.TokenAmount] struct {
	db       dbm.DB
	sizeHint int
}

var _ Store[model.TokenIDU8, uint64] = (*KVStore[model.TokenIDU8, uint64])(nil)

// NewKVStore wraps db. sizeHint presizes the per-transaction write set.
func NewKVStore[T model.TokenID, A model.TokenAmount](db dbm.DB, sizeHint int) *KVStore[T, A] {
	return &KVStore[T, A]{db: db, sizeHint: sizeHint}
}

func encodeKey[T model.TokenID](key model.ListingKey[T]) ([]byte, error) {
	return orderedcode.Append(nil,
		listingKeyPrefix,
		key.Token.Contract.Index,
		key.Token.Contract.Subindex,
		key.Token.ID.String(),
		key.Owner.String(),
	)
}

func listingPrefix() []byte {
	prefix, err := orderedcode.Append(nil, listingKeyPrefix)
	if err != nil {
		panic(err)
	}
	return prefix
}

func (s *KVStore[T, A]) Begin(ctx context.Context) (Txn[T, A], error) {
	return &kvTxn[T, A]{
		db:     s.db,
		writes: make(map[string]*record[T, A], s.sizeHint),
	}, nil
}

func (s *KVStore[T, A]) Close() error {
	return s.db.Close()
}

type kvTxn[T model.TokenID, A model.TokenAmount] struct {
	db     dbm.DB
	writes map[string]*record[T, A]
	done   bool
}

func (t *kvTxn[T, A]) load(key model.ListingKey[T]) (string, *record[T, A], error) {
	k, err := encodeKey(key)
	if err != nil {
		return "", nil, fmt.Errorf("encoding listing key: %w", err)
	}
	if rec, ok := t.writes[string(k)]; ok {
		return string(k), rec, nil
	}
	raw, err := t.db.Get(k)
	if err != nil {
		return "", nil, fmt.Errorf("reading listing %s: %w", key.Token, err)
	}
	if raw == nil {
		return string(k), nil, nil
	}
	rec := new(record[T, A])
	if err := json.Unmarshal(raw, rec); err != nil {
		return "", nil, fmt.Errorf("decoding listing %s: %w", key.Token, err)
	}
	return string(k), rec, nil
}

func (t *kvTxn[T, A]) AddListing(ctx context.Context, key model.ListingKey[T], price model.Amount, quantity A) (bool, error) {
	if t.done {
		return false, errTxnDone
	}
	k, rec, err := t.load(key)
	if err != nil {
		return false, err
	}
	if rec != nil {
		return false, nil
	}
	t.writes[k] = &record[T, A]{Key: key, Listing: model.Listing[A]{Quantity: quantity, Price: price}}
	return true, nil
}

func (t *kvTxn[T, A]) GetListing(ctx context.Context, key model.ListingKey[T]) (*model.Listing[A], error) {
	if t.done {
		return nil, errTxnDone
	}
	_, rec, err := t.load(key)
	if err != nil || rec == nil {
		return nil, err
	}
	l := rec.Listing
	return &l, nil
}

func (t *kvTxn[T, A]) PutListing(ctx context.Context, key model.ListingKey[T], listing model.Listing[A]) error {
	if t.done {
		return errTxnDone
	}
	k, rec, err := t.load(key)
	if err != nil || rec == nil {
		return err
	}
	t.writes[k] = &record[T, A]{Key: key, Listing: listing}
	return nil
}

func (t *kvTxn[T, A]) DecreaseQuantity(ctx context.Context, key model.ListingKey[T], delta A) error {
	if t.done {
		return errTxnDone
	}
	k, rec, err := t.load(key)
	if err != nil || rec == nil {
		return err
	}
	t.writes[k] = &record[T, A]{Key: key, Listing: rec.Listing.Decrease(delta)}
	return nil
}

func (t *kvTxn[T, A]) ListActive(ctx context.Context) ([]model.ListingItem[T, A], error) {
	if t.done {
		return nil, errTxnDone
	}
	iter, err := dbm.IteratePrefix(t.db, listingPrefix())
	if err != nil {
		return nil, fmt.Errorf("iterating listings: %w", err)
	}
	defer iter.Close()

	merged := make(map[string]*record[T, A])
	for ; iter.Valid(); iter.Next() {
		rec := new(record[T, A])
		if err := json.Unmarshal(iter.Value(), rec); err != nil {
			return nil, fmt.Errorf("decoding listing: %w", err)
		}
		merged[string(iter.Key())] = rec
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	for k, rec := range t.writes {
		merged[k] = rec
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]model.ListingItem[T, A], 0, len(keys))
	for _, k := range keys {
		if rec := merged[k]; rec.Listing.IsActive() {
			items = append(items, model.NewListingItem(rec.Key, rec.Listing))
		}
	}
	return items, nil
}

func (t *kvTxn[T, A]) Commit() error {
	if t.done {
		return errTxnDone
	}
	t.done = true
	if len(t.writes) == 0 {
		return nil
	}

	batch := t.db.NewBatch()
	defer batch.Close()
	for k, rec := range t.writes {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding listing %s: %w", rec.Key.Token, err)
		}
		if err := batch.Set([]byte(k), raw); err != nil {
			return err
		}
	}
	return batch.WriteSync()
}

func (t *kvTxn[T, A]) Rollback() error {
	t.done = true
	t.writes = nil
	return nil
}
