package exchange

import (
	"context"

	"github.com/josidbobo/IDConcordiumDEX/internal/host"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// Add lists quantity units of a token held by the sender at price per unit.
// A listing that already exists for the token and sender is left untouched.
// No tokens or currency move.
func (e *Exchange[T, A]) Add(ctx context.Context, sender model.Address, p AddParams[T, A]) error {
	call := host.Call{Entrypoint: EntrypointAdd, Sender: sender}
	return e.invoke(ctx, call, func(ctx context.Context, inv *host.Invocation, state listing.Txn[T, A]) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if !inv.Sender.IsAccount() {
			return ErrCallerIsContract
		}
		token := p.Token()
		ledger, err := e.ledger.ResolveLedger(ctx, token.Contract)
		if err != nil {
			return err
		}
		if err := e.ledger.EnsureOperator(ctx, ledger, inv.Sender, model.ContractOf(inv.Self)); err != nil {
			return err
		}
		if err := e.ledger.EnsureBalance(ctx, ledger, p.TokenID, inv.Sender, p.Quantity); err != nil {
			return err
		}

		owner := inv.Sender.Account
		added, err := state.AddListing(ctx, model.NewListingKey(token, owner), p.Price, p.Quantity)
		if err != nil {
			return err
		}
		if !added {
			e.logger.Debug("listing already exists", "token", token, "owner", owner)
			return nil
		}
		inv.OnCommit(func() {
			e.metrics.ListingsAdded.Add(1)
			e.emit(model.Event{
				Kind:        model.EventTokensListed,
				Token:       token.String(),
				Owner:       owner,
				Price:       p.Price,
				TokenAmount: uint64(p.Quantity),
			})
		})
		return nil
	})
}
