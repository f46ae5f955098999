package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/host"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// TransferCIS2 liquidates quantity units of the sender's listing: the tokens
// move from the owner into the escrow of the instance and the owner is paid
// price times quantity from the instance balance.
//
// The returned id names the settlement intent of the payout. When the token
// transfer succeeded but the payout failed, the error is
// ErrCurrencyTransferFailed, the tokens stay escrowed and the intent can be
// completed with SettlePayout. Until then its quantity is held back from
// the listing.
func (e *Exchange[T, A]) TransferCIS2(ctx context.Context, sender model.Address, p TransferParams[T, A]) (uuid.UUID, error) {
	var intentID uuid.UUID
	call := host.Call{Entrypoint: EntrypointTransferCIS2, Sender: sender}
	err := e.invoke(ctx, call, func(ctx context.Context, inv *host.Invocation, state listing.Txn[T, A]) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if !inv.Sender.IsAccount() || inv.Sender.Account != p.Owner {
			return ErrUnauthorized
		}
		key := p.Key()
		current, err := state.GetListing(ctx, key)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrListingNotFound
		}
		available, err := e.available(ctx, key, current.Quantity)
		if err != nil {
			return err
		}
		if available < p.Quantity {
			return ErrInsufficientListedQuantity
		}
		payout, ok := model.TotalPrice(current.Price, p.Quantity)
		if !ok {
			return ErrInsufficientContractFunds
		}
		shares := CalculateAmounts(payout, p.Owner)
		if !checkDistribution(shares, payout) {
			return fmt.Errorf("%w: distribution does not add up to %s", ErrCurrencyTransferFailed, payout)
		}
		balance, err := inv.SelfBalance(ctx)
		if err != nil {
			return err
		}
		if balance < payout {
			return ErrInsufficientContractFunds
		}
		ledger, err := e.ledger.ResolveLedger(ctx, p.CISContractAddress)
		if err != nil {
			return err
		}

		intentID, err = e.journal.Reserve(ctx, settlement.Intent{
			TokenID:          p.TokenID.String(),
			ContractIndex:    p.CISContractAddress.Index,
			ContractSubindex: p.CISContractAddress.Subindex,
			Owner:            p.Owner.String(),
			Quantity:         uint64(p.Quantity),
			Payout:           uint64(payout),
		})
		if err != nil {
			return fmt.Errorf("reserve settlement intent: %w", err)
		}

		// the receive hook escrows the intent named in the transfer data
		err = e.ledger.Transfer(ctx, ledger, cis2.Transfer[T, A]{
			TokenID: p.TokenID,
			Amount:  p.Quantity,
			From:    model.AccountOf(p.Owner),
			To:      cis2.ContractReceiver(inv.Self, EntrypointOnReceiving),
			Data:    intentID[:],
		})
		if err != nil {
			e.release(ctx, intentID, err)
			return err
		}
		if err := e.ensureEscrowed(ctx, inv, ledger, intentID, p); err != nil {
			return err
		}

		if err := state.DecreaseQuantity(ctx, key, p.Quantity); err != nil {
			return err
		}
		if err := e.payout(ctx, inv, intentID, shares); err != nil {
			e.metrics.PayoutsEscrowed.Add(1)
			e.logger.Error("payout failed, tokens remain escrowed", "intent", intentID, "owner", p.Owner, "payout", payout, "err", err)
			return err
		}

		id := intentID.String()
		token := p.Token().String()
		inv.OnCommit(func() {
			e.metrics.TokensTraded.With("entrypoint", EntrypointTransferCIS2).Add(float64(p.Quantity))
			e.metrics.PayoutsSettled.Add(float64(payout))
			e.emit(model.Event{
				Kind:        model.EventTokensSold,
				Token:       token,
				Owner:       p.Owner,
				Price:       current.Price,
				CCDAmount:   payout,
				TokenAmount: uint64(p.Quantity),
				Intent:      id,
			})
			e.emit(model.Event{
				Kind:      model.EventPayoutSettled,
				Token:     token,
				Owner:     p.Owner,
				CCDAmount: payout,
				Intent:    id,
			})
		})
		return nil
	})
	return intentID, err
}

// release closes the intent of a failed token transfer. The failed ledger
// call is authoritative even when the receive hook already escrowed it.
func (e *Exchange[T, A]) release(ctx context.Context, id uuid.UUID, cause error) {
	err := e.journal.Transition(ctx, id, settlement.Reserved, settlement.Released, cause.Error())
	if errors.Is(err, settlement.ErrStateConflict) {
		err = e.journal.Transition(ctx, id, settlement.Escrowed, settlement.Released, cause.Error())
		e.logger.Error("ledger failed after the receive hook ran", "intent", id, "err", cause)
	}
	if err != nil {
		e.logger.Error("failed to release settlement intent", "intent", id, "err", err)
	}
}

// ensureEscrowed escrows the intent of a completed token transfer when the
// ledger did not call the receive hook. If the journal cannot record the
// escrow, the tokens go back to the owner and the intent is released.
func (e *Exchange[T, A]) ensureEscrowed(ctx context.Context, inv *host.Invocation, ledger model.ContractAddress, id uuid.UUID, p TransferParams[T, A]) error {
	err := e.journal.Transition(ctx, id, settlement.Reserved, settlement.Escrowed, "")
	if err == nil {
		return nil
	}
	if errors.Is(err, settlement.ErrStateConflict) {
		intent, gErr := e.journal.Get(ctx, id)
		if gErr == nil && intent.State == settlement.Escrowed {
			return nil
		}
	}

	e.logger.Error("could not escrow settlement intent, returning tokens", "intent", id, "owner", p.Owner, "err", err)
	rErr := e.ledger.Transfer(ctx, ledger, cis2.Transfer[T, A]{
		TokenID: p.TokenID,
		Amount:  p.Quantity,
		From:    model.ContractOf(inv.Self),
		To:      cis2.AccountReceiver(p.Owner),
	})
	if rErr != nil {
		e.logger.Error("returning escrowed tokens failed", "intent", id, "owner", p.Owner, "quantity", uint64(p.Quantity), "err", rErr)
		return fmt.Errorf("escrow settlement intent: %v; returning tokens: %w", err, rErr)
	}
	e.release(ctx, id, err)
	return fmt.Errorf("escrow settlement intent: %w", err)
}

// payout claims an escrowed intent and pays its shares. A failed payment
// returns the intent to Escrowed with the failure recorded.
func (e *Exchange[T, A]) payout(ctx context.Context, inv *host.Invocation, id uuid.UUID, shares Distribution) error {
	err := e.journal.Transition(ctx, id, settlement.Escrowed, settlement.Settled, "")
	if errors.Is(err, settlement.ErrStateConflict) || errors.Is(err, settlement.ErrIntentNotFound) {
		return fmt.Errorf("%w: %v", ErrIntentNotPending, err)
	}
	if err != nil {
		return fmt.Errorf("claim settlement intent: %w", err)
	}
	for _, share := range shares {
		if share.Amount == 0 {
			continue
		}
		if err := inv.TransferCurrency(ctx, share.Recipient, share.Amount); err != nil {
			if jErr := e.journal.Transition(ctx, id, settlement.Settled, settlement.Escrowed, err.Error()); jErr != nil {
				e.logger.Error("failed to reopen settlement intent", "intent", id, "err", jErr)
			}
			return fmt.Errorf("%w: %v", ErrCurrencyTransferFailed, err)
		}
	}
	return nil
}
