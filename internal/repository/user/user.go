// Package user stores the credentials of the accounts that trade through the
// HTTP surface.
package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAddressTaken       = errors.New("address already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID           int64     `db:"id"`
	Address      string    `db:"address"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

type UserRepository interface {
	Create(ctx context.Context, address, password string) (int64, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByAddress(ctx context.Context, address string) (*User, error)
	VerifyPassword(ctx context.Context, address, password string) (*User, error)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verify(u *User, password string) (*User, error) {
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

type userRepositoryImpl struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepositoryImpl{db: db}
}

const uniqueViolation = "23505"

func (r *userRepositoryImpl) Create(ctx context.Context, address, password string) (int64, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO users (address, password_hash) VALUES ($1, $2) RETURNING id`,
		address, hash).Scan(&id)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return 0, ErrAddressTaken
	}
	return id, err
}

func (r *userRepositoryImpl) get(ctx context.Context, query string, arg interface{}) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepositoryImpl) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.get(ctx, `SELECT id, address, password_hash, created_at FROM users WHERE id=$1`, id)
}

func (r *userRepositoryImpl) GetByAddress(ctx context.Context, address string) (*User, error) {
	return r.get(ctx, `SELECT id, address, password_hash, created_at FROM users WHERE address=$1`, address)
}

func (r *userRepositoryImpl) VerifyPassword(ctx context.Context, address, password string) (*User, error) {
	u, err := r.GetByAddress(ctx, address)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return verify(u, password)
}
