package exchange

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// OnReceivingCIS2 is the receive hook a token ledger calls when tokens are
// transferred into the escrow of the instance. Receipts without data are
// accepted as they are. Receipts whose data names a settlement intent escrow
// that intent, provided sender is its ledger and the receipt matches it.
//
// The hook runs while the ledger transfer of a transfer_cis2 invocation is
// still in flight, so it must not enter the runtime.
func (e *Exchange[T, A]) OnReceivingCIS2(ctx context.Context, sender model.Address, param []byte) error {
	var p cis2.OnReceivingParams[T]
	if err := json.Unmarshal(param, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrParameterDecode, err)
	}
	e.logger.Debug("tokens received", "token", p.TokenID, "amount", p.TokenAmount(), "from", p.From, "ledger", sender)
	if p.Data == "" {
		return nil
	}

	raw, err := hex.DecodeString(p.Data)
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrParameterDecode, err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrParameterDecode, err)
	}
	intent, err := e.journal.Get(ctx, id)
	if errors.Is(err, settlement.ErrIntentNotFound) {
		return fmt.Errorf("%w: %v", ErrIntentNotPending, err)
	}
	if err != nil {
		return err
	}
	ok, err := e.receiptMatches(ctx, intent, sender, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: receipt does not match intent %s", ErrUnauthorized, id)
	}
	err = e.journal.Transition(ctx, id, settlement.Reserved, settlement.Escrowed, "")
	if errors.Is(err, settlement.ErrStateConflict) {
		return fmt.Errorf("%w: %v", ErrIntentNotPending, err)
	}
	return err
}

// receiptMatches reports whether the receipt carries the tokens of intent
// and comes from the ledger of its collection.
func (e *Exchange[T, A]) receiptMatches(ctx context.Context, intent *settlement.Intent, sender model.Address, p cis2.OnReceivingParams[T]) (bool, error) {
	if sender.IsAccount() ||
		!p.From.IsAccount() || p.From.Account.String() != intent.Owner ||
		p.TokenID.String() != intent.TokenID ||
		p.TokenAmount() != intent.Quantity {
		return false, nil
	}
	collection := model.ContractAddress{Index: intent.ContractIndex, Subindex: intent.ContractSubindex}
	if sender.Contract == collection {
		return true, nil
	}
	ledger, err := e.ledger.ResolveLedger(ctx, collection)
	if err != nil {
		return false, err
	}
	return sender.Contract == ledger, nil
}
