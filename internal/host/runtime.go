// Package host runs the entry points of one contract instance. Invocations
// are serialised and run to completion; each one works in its own state
// transaction that is committed only when the entry point succeeds.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/josidbobo/IDConcordiumDEX/internal/currency"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

var ErrAttachedExceedsBalance = errors.New("attached amount exceeds sender balance")

// Currency moves CCD between addresses.
type Currency interface {
	Balance(ctx context.Context, addr model.Address) (model.Amount, error)
	Reserve(ctx context.Context, from, to model.Address, amount model.Amount) (currency.Hold, error)
	Post(ctx context.Context, hold currency.Hold) error
	Void(ctx context.Context, hold currency.Hold) error
	Transfer(ctx context.Context, from, to model.Address, amount model.Amount, code currency.Code) error
}

// Tx is instance state opened for one invocation.
type Tx interface {
	Commit() error
	Rollback() error
}

type Beginner[S Tx] interface {
	Begin(ctx context.Context) (S, error)
}

// Call describes an incoming invocation.
type Call struct {
	Entrypoint string
	Sender     model.Address
	Amount     model.Amount
}

type Runtime[S Tx] struct {
	mtx sync.Mutex

	self     model.ContractAddress
	owner    model.AccountAddress
	state    Beginner[S]
	currency Currency
	logger   log.Logger
}

type RuntimeOpts[S Tx] struct {
	Self     model.ContractAddress
	Owner    model.AccountAddress
	State    Beginner[S]
	Currency Currency
	Logger   log.Logger
}

func NewRuntime[S Tx](opts RuntimeOpts[S]) *Runtime[S] {
	return &Runtime[S]{
		self:     opts.Self,
		owner:    opts.Owner,
		state:    opts.State,
		currency: opts.Currency,
		logger:   opts.Logger.With("module", "host", "instance", opts.Self),
	}
}

func (r *Runtime[S]) Self() model.ContractAddress { return r.self }

func (r *Runtime[S]) Owner() model.AccountAddress { return r.owner }

// Invoke runs fn as one invocation. The attached amount is held from the
// sender while fn runs; it is credited to the instance when fn succeeds and
// released otherwise. Effects registered with Invocation.OnCommit run after
// the state transaction commits.
func (r *Runtime[S]) Invoke(ctx context.Context, call Call, fn func(ctx context.Context, inv *Invocation, state S) error) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	logger := r.logger.With("entrypoint", call.Entrypoint, "sender", call.Sender)

	var hold *currency.Hold
	if call.Amount > 0 {
		h, err := r.currency.Reserve(ctx, call.Sender, model.ContractOf(r.self), call.Amount)
		if errors.Is(err, currency.ErrInsufficientFunds) {
			return ErrAttachedExceedsBalance
		}
		if err != nil {
			return fmt.Errorf("hold attached amount: %w", err)
		}
		hold = &h
	}
	release := func() {
		if hold == nil {
			return
		}
		if err := r.currency.Void(ctx, *hold); err != nil {
			logger.Error("failed to release attached amount", "amount", call.Amount, "err", err)
		}
	}

	state, err := r.state.Begin(ctx)
	if err != nil {
		release()
		return fmt.Errorf("begin state: %w", err)
	}

	inv := &Invocation{
		Entrypoint: call.Entrypoint,
		Sender:     call.Sender,
		Owner:      r.owner,
		Self:       r.self,
		Amount:     call.Amount,
		currency:   r.currency,
	}
	if err := fn(ctx, inv, state); err != nil {
		if rbErr := state.Rollback(); rbErr != nil {
			logger.Error("rollback failed", "err", rbErr)
		}
		release()
		logger.Debug("invocation rejected", "err", err)
		return err
	}

	if hold != nil {
		if err := r.currency.Post(ctx, *hold); err != nil {
			_ = state.Rollback()
			release()
			return fmt.Errorf("capture attached amount: %w", err)
		}
	}
	if err := state.Commit(); err != nil {
		if hold != nil {
			if rfErr := r.currency.Transfer(ctx, model.ContractOf(r.self), call.Sender, call.Amount, currency.CodeRefund); rfErr != nil {
				logger.Error("failed to refund attached amount", "amount", call.Amount, "err", rfErr)
			}
		}
		return fmt.Errorf("commit state: %w", err)
	}

	for _, effect := range inv.effects {
		effect()
	}
	logger.Debug("invocation committed", "amount", call.Amount)
	return nil
}

// Query runs fn against a state transaction that is always rolled back.
func (r *Runtime[S]) Query(ctx context.Context, fn func(ctx context.Context, state S) error) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	state, err := r.state.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin state: %w", err)
	}
	defer state.Rollback()
	return fn(ctx, state)
}

// SelfBalance is the posted balance of the instance, without holds of
// in-flight invocations.
func (r *Runtime[S]) SelfBalance(ctx context.Context) (model.Amount, error) {
	return r.currency.Balance(ctx, model.ContractOf(r.self))
}
