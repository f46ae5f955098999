// Package user registers trading accounts and manages their CCD balance.
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	repository "github.com/josidbobo/IDConcordiumDEX/internal/repository/user"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// Currency is the part of the currency ledger accounts use.
type Currency interface {
	Open(ctx context.Context, addr model.Address) error
	Balance(ctx context.Context, addr model.Address) (model.Amount, error)
	Deposit(ctx context.Context, to model.Address, amount model.Amount) error
}

type UserUseCase interface {
	Register(ctx context.Context, address model.AccountAddress, password string) (int64, error)
	Login(ctx context.Context, address model.AccountAddress, password string) (*repository.User, error)
	GetProfile(ctx context.Context, userID int64) (*UserProfile, error)
	Deposit(ctx context.Context, userID int64, amount model.Amount) error
}

type userUseCaseImpl struct {
	repo     repository.UserRepository
	currency Currency
	logger   log.Logger
}

type UserUseCaseOpts struct {
	UserRepo repository.UserRepository
	Currency Currency
	Logger   log.Logger
}

func NewUserUseCase(opts UserUseCaseOpts) UserUseCase {
	return &userUseCaseImpl{
		repo:     opts.UserRepo,
		currency: opts.Currency,
		logger:   opts.Logger.With("module", "user"),
	}
}

// Register stores the credentials of address and opens its currency account.
// Opening is idempotent, so a failed registration can be retried.
func (uc *userUseCaseImpl) Register(ctx context.Context, address model.AccountAddress, password string) (int64, error) {
	if address.IsZero() {
		return 0, errors.New("address is required")
	}
	if password == "" {
		return 0, errors.New("password is required")
	}
	existing, err := uc.repo.GetByAddress(ctx, address.String())
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return 0, err
	}
	if existing != nil {
		return 0, repository.ErrAddressTaken
	}

	if err := uc.currency.Open(ctx, model.AccountOf(address)); err != nil {
		return 0, fmt.Errorf("open currency account: %w", err)
	}
	id, err := uc.repo.Create(ctx, address.String(), password)
	if err != nil {
		return 0, err
	}
	uc.logger.Info("account registered", "user", id, "address", address)
	return id, nil
}

func (uc *userUseCaseImpl) Login(ctx context.Context, address model.AccountAddress, password string) (*repository.User, error) {
	return uc.repo.VerifyPassword(ctx, address.String(), password)
}

type UserProfile struct {
	Address model.AccountAddress
	Balance model.Amount
	*repository.User
}

func (uc *userUseCaseImpl) account(ctx context.Context, userID int64) (*repository.User, model.AccountAddress, error) {
	u, err := uc.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, model.AccountAddress{}, err
	}
	addr, err := model.ParseAccountAddress(u.Address)
	if err != nil {
		return nil, model.AccountAddress{}, err
	}
	return u, addr, nil
}

func (uc *userUseCaseImpl) GetProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	u, addr, err := uc.account(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance, err := uc.currency.Balance(ctx, model.AccountOf(addr))
	if err != nil {
		return nil, err
	}
	return &UserProfile{Address: addr, Balance: balance, User: u}, nil
}

// Deposit credits amount from the treasury to the user's account.
func (uc *userUseCaseImpl) Deposit(ctx context.Context, userID int64, amount model.Amount) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	_, addr, err := uc.account(ctx, userID)
	if err != nil {
		return err
	}
	if err := uc.currency.Deposit(ctx, model.AccountOf(addr), amount); err != nil {
		return err
	}
	uc.logger.Info("deposit", "user", userID, "amount", amount)
	return nil
}
