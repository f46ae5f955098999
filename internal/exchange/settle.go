package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josidbobo/IDConcordiumDEX/internal/host"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

var _ settlement.Settler = (*Exchange[model.TokenIDU32, uint64])(nil)

func intentListing[T model.TokenID](key model.ListingKey[T]) settlement.Listing {
	return settlement.Listing{
		TokenID:          key.Token.ID.String(),
		ContractIndex:    key.Token.Contract.Index,
		ContractSubindex: key.Token.Contract.Subindex,
		Owner:            key.Owner.String(),
	}
}

// available is the listed quantity of key not held by open settlement
// intents.
func (e *Exchange[T, A]) available(ctx context.Context, key model.ListingKey[T], listed A) (A, error) {
	held, err := e.journal.Outstanding(ctx, intentListing(key))
	if err != nil {
		return 0, fmt.Errorf("outstanding settlement intents: %w", err)
	}
	if held >= uint64(listed) {
		return 0, nil
	}
	return listed - A(held), nil
}

// SettlePayout removes the escrowed quantity from the listing and pays out an
// escrowed liquidation. Only the owner of the instance may call it.
func (e *Exchange[T, A]) SettlePayout(ctx context.Context, sender model.Address, id uuid.UUID) error {
	call := host.Call{Entrypoint: EntrypointSettlePayout, Sender: sender}
	return e.invoke(ctx, call, func(ctx context.Context, inv *host.Invocation, state listing.Txn[T, A]) error {
		if !inv.SenderIsOwner() {
			return ErrUnauthorized
		}
		intent, err := e.journal.Get(ctx, id)
		if errors.Is(err, settlement.ErrIntentNotFound) {
			return ErrIntentNotPending
		}
		if err != nil {
			return err
		}
		if intent.State != settlement.Escrowed {
			return fmt.Errorf("%w: intent %s is %s", ErrIntentNotPending, id, intent.State)
		}

		tokenID, err := model.ParseTokenID[T](intent.TokenID)
		if err != nil {
			return fmt.Errorf("intent %s: %w", id, err)
		}
		owner, err := model.ParseAccountAddress(intent.Owner)
		if err != nil {
			return fmt.Errorf("intent %s: %w", id, err)
		}
		token := model.TokenIdentity[T]{
			ID:       tokenID,
			Contract: model.ContractAddress{Index: intent.ContractIndex, Subindex: intent.ContractSubindex},
		}
		payout := model.Amount(intent.Payout)

		// the escrowed units were held back from every sale since, so the
		// listing still carries them
		key := model.NewListingKey(token, owner)
		current, err := state.GetListing(ctx, key)
		if err != nil {
			return err
		}
		if current == nil || uint64(current.Quantity) < intent.Quantity {
			return fmt.Errorf("%w: intent %s escrows %d units the listing no longer holds", ErrInsufficientListedQuantity, id, intent.Quantity)
		}
		if err := state.PutListing(ctx, key, current.Decrease(A(intent.Quantity))); err != nil {
			return err
		}

		if err := e.payout(ctx, inv, id, CalculateAmounts(payout, owner)); err != nil {
			return err
		}

		intentID := id.String()
		inv.OnCommit(func() {
			e.metrics.TokensTraded.With("entrypoint", EntrypointSettlePayout).Add(float64(intent.Quantity))
			e.metrics.PayoutsSettled.Add(float64(payout))
			e.emit(model.Event{
				Kind:        model.EventPayoutSettled,
				Token:       token.String(),
				Owner:       owner,
				CCDAmount:   payout,
				TokenAmount: intent.Quantity,
				Intent:      intentID,
			})
		})
		return nil
	})
}

// SettleEscrowed retries an escrowed payout on behalf of the owner of the
// instance.
func (e *Exchange[T, A]) SettleEscrowed(ctx context.Context, id uuid.UUID) error {
	return e.SettlePayout(ctx, model.AccountOf(e.rt.Owner()), id)
}

// ReleaseReserved releases an intent whose token transfer never reported
// back, returning its quantity to the listing. It runs as an invocation, so
// no transfer_cis2 holding the intent is in flight.
func (e *Exchange[T, A]) ReleaseReserved(ctx context.Context, id uuid.UUID) error {
	call := host.Call{Entrypoint: EntrypointRelease, Sender: model.AccountOf(e.rt.Owner())}
	return e.invoke(ctx, call, func(ctx context.Context, inv *host.Invocation, state listing.Txn[T, A]) error {
		err := e.journal.Transition(ctx, id, settlement.Reserved, settlement.Released, "no token receipt recorded")
		if errors.Is(err, settlement.ErrStateConflict) || errors.Is(err, settlement.ErrIntentNotFound) {
			return fmt.Errorf("%w: %w", ErrIntentNotPending, err)
		}
		return err
	})
}
