package host

import (
	"context"

	"github.com/josidbobo/IDConcordiumDEX/internal/currency"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// Invocation is the context an entry point runs in.
type Invocation struct {
	Entrypoint string
	Sender     model.Address
	Owner      model.AccountAddress
	Self       model.ContractAddress
	Amount     model.Amount

	currency Currency
	effects  []func()
}

// SelfBalance includes the amount attached to this invocation.
func (inv *Invocation) SelfBalance(ctx context.Context) (model.Amount, error) {
	balance, err := inv.currency.Balance(ctx, model.ContractOf(inv.Self))
	if err != nil {
		return 0, err
	}
	total, ok := balance.CheckedAdd(inv.Amount)
	if !ok {
		return balance, nil
	}
	return total, nil
}

// TransferCurrency pays amount from the instance to an account. The payment
// is not undone if the invocation fails afterwards.
func (inv *Invocation) TransferCurrency(ctx context.Context, to model.AccountAddress, amount model.Amount) error {
	return inv.currency.Transfer(ctx, model.ContractOf(inv.Self), model.AccountOf(to), amount, currency.CodePayout)
}

// SenderIsOwner reports whether the sender is the account that owns the
// instance.
func (inv *Invocation) SenderIsOwner() bool {
	return inv.Sender.IsAccount() && inv.Sender.Account == inv.Owner
}

// OnCommit registers fn to run once the invocation has committed.
func (inv *Invocation) OnCommit(fn func()) {
	inv.effects = append(inv.effects, fn)
}
