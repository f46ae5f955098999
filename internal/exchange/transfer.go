package exchange

import (
	"context"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/host"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// Transfer sells quantity units of the owner's listing to p.To for the
// attached amount. The tokens leave the escrow of the instance; the attached
// amount stays with the instance. Units escrowed by unsettled liquidations
// are not for sale.
func (e *Exchange[T, A]) Transfer(ctx context.Context, sender model.Address, amount model.Amount, p TransferParams[T, A]) error {
	call := host.Call{Entrypoint: EntrypointTransfer, Sender: sender, Amount: amount}
	return e.invoke(ctx, call, func(ctx context.Context, inv *host.Invocation, state listing.Txn[T, A]) error {
		if err := p.Validate(); err != nil {
			return err
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
		price, ok := model.TotalPrice(current.Price, p.Quantity)
		if !ok || inv.Amount < price {
			return ErrUnderpaidRequest
		}

		ledger, err := e.ledger.ResolveLedger(ctx, p.CISContractAddress)
		if err != nil {
			return err
		}
		err = e.ledger.Transfer(ctx, ledger, cis2.Transfer[T, A]{
			TokenID: p.TokenID,
			Amount:  p.Quantity,
			From:    model.ContractOf(inv.Self),
			To:      cis2.AccountReceiver(p.To),
		})
		if err != nil {
			return err
		}

		if err := state.DecreaseQuantity(ctx, key, p.Quantity); err != nil {
			return err
		}
		buyer := model.AccountOf(p.To)
		inv.OnCommit(func() {
			e.metrics.TokensTraded.With("entrypoint", EntrypointTransfer).Add(float64(p.Quantity))
			e.emit(model.Event{
				Kind:         model.EventTokensPurchased,
				Token:        p.Token().String(),
				Owner:        p.Owner,
				Counterparty: &buyer,
				Price:        current.Price,
				CCDAmount:    inv.Amount,
				TokenAmount:  uint64(p.Quantity),
			})
		})
		return nil
	})
}
