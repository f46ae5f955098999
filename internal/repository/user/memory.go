package user

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mtx       sync.Mutex
	users     map[int64]User
	byAddress map[string]int64
	nextID    int64
}

// NewMemoryRepository keeps users in memory. It backs the in-memory
// deployment and tests.
func NewMemoryRepository() UserRepository {
	return &memoryRepository{
		users:     make(map[int64]User),
		byAddress: make(map[string]int64),
	}
}

func (r *memoryRepository) Create(ctx context.Context, address, password string) (int64, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.byAddress[address]; ok {
		return 0, ErrAddressTaken
	}
	r.nextID++
	r.users[r.nextID] = User{ID: r.nextID, Address: address, PasswordHash: hash, CreatedAt: time.Now()}
	r.byAddress[address] = r.nextID
	return r.nextID, nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *memoryRepository) GetByAddress(ctx context.Context, address string) (*User, error) {
	r.mtx.Lock()
	id, ok := r.byAddress[address]
	r.mtx.Unlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memoryRepository) VerifyPassword(ctx context.Context, address, password string) (*User, error) {
	u, err := r.GetByAddress(ctx, address)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return verify(u, password)
}
