package exchange_test

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/currency"
	"github.com/josidbobo/IDConcordiumDEX/internal/exchange"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

func listedFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.fundInstance(t, 1000)
	require.NoError(t, f.ex.Add(context.Background(), model.AccountOf(seller), addParams(100, 5)))
	return f
}

func (f *fixture) intent(t *testing.T, id uuid.UUID) *settlement.Intent {
	intent, err := f.journal.Get(context.Background(), id)
	require.NoError(t, err)
	return intent
}

func TestTransferCIS2PaysOwner(t *testing.T) {
	f := listedFixture(t)

	id, err := f.ex.TransferCIS2(context.Background(), model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.NoError(t, err)

	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 3}, f.listing(t, seller))
	assert.EqualValues(t, 3, f.tokens.Balance(token1, model.AccountOf(seller)))
	assert.EqualValues(t, 2, f.tokens.Balance(token1, model.ContractOf(instance)))
	assert.EqualValues(t, 200, f.balance(t, model.AccountOf(seller)))
	assert.EqualValues(t, 800, f.balance(t, model.ContractOf(instance)))
	assert.Equal(t, 1, f.received, "escrow callback runs once")

	intent := f.intent(t, id)
	assert.Equal(t, settlement.Settled, intent.State)
	assert.EqualValues(t, 200, intent.Payout)
	assert.EqualValues(t, 2, intent.Quantity)
	assert.Equal(t, token1.String(), intent.TokenID)
	assert.Equal(t, seller.String(), intent.Owner)

	transfers := f.tokens.Calls(cis2.EntrypointTransfer)
	require.Len(t, transfers, 1)
	assert.JSONEq(t,
		`[{"token_id":"01000000","amount":"2","from":{"Account":["`+seller.String()+`"]},"to":{"Contract":[{"index":7,"subindex":0},"onReceivingCIS2"]},"data":"`+hex.EncodeToString(id[:])+`"}]`,
		string(transfers[0].Param))

	require.Equal(t, []model.EventKind{model.EventTokensListed, model.EventTokensSold, model.EventPayoutSettled}, f.eventKinds())
	assert.Equal(t, id.String(), f.events.Events[1].Intent)
	assert.EqualValues(t, 200, f.events.Events[2].CCDAmount)
}

func TestTransferCIS2Rejections(t *testing.T) {
	testCases := map[string]struct {
		setup    func(f *fixture)
		sender   model.Address
		params   exchange.TransferParams[tokenID, amount]
		err      error
		released bool
	}{
		"zero quantity": {
			sender: model.AccountOf(seller),
			params: transferParams(seller, buyer, 0),
			err:    exchange.ErrParameterDecode,
		},
		"sender is not the owner": {
			sender: model.AccountOf(buyer),
			params: transferParams(seller, buyer, 2),
			err:    exchange.ErrUnauthorized,
		},
		"contract sender": {
			sender: model.ContractOf(collection),
			params: transferParams(seller, buyer, 2),
			err:    exchange.ErrUnauthorized,
		},
		"no listing": {
			sender: model.AccountOf(otherSeller),
			params: transferParams(otherSeller, buyer, 2),
			err:    exchange.ErrListingNotFound,
		},
		"more than listed": {
			sender: model.AccountOf(seller),
			params: transferParams(seller, buyer, 6),
			err:    exchange.ErrInsufficientListedQuantity,
		},
		"instance cannot cover payout": {
			sender: model.AccountOf(seller),
			params: transferParams(seller, buyer, 5),
			setup: func(f *fixture) {
				f.tb.FailCode(uint16(currency.CodeDeposit), types.TransferExceedsCredits)
			},
			err: exchange.ErrInsufficientContractFunds,
		},
		"collection stopped supporting": {
			sender: model.AccountOf(seller),
			params: transferParams(seller, buyer, 2),
			setup: func(f *fixture) {
				f.tokens.SetSupport(cis2.SupportResult{Kind: cis2.NotSupported})
			},
			err: exchange.ErrCollectionNotSupported,
		},
		"operator revoked": {
			sender: model.AccountOf(seller),
			params: transferParams(seller, buyer, 2),
			setup: func(f *fixture) {
				f.tokens.SetOperator(model.AccountOf(seller), model.ContractOf(instance), false)
			},
			err:      exchange.ErrLedgerCommunication,
			released: true,
		},
		"escrow callback rejects": {
			sender: model.AccountOf(seller),
			params: transferParams(seller, buyer, 2),
			setup: func(f *fixture) {
				f.tokens.OnReceive(func(ctx context.Context, ledger, to model.ContractAddress, entrypoint string, param []byte) error {
					return errors.New("paused")
				})
			},
			err:      exchange.ErrLedgerCommunication,
			released: true,
		},
		"escrow cannot be recorded": {
			sender: model.AccountOf(seller),
			params: transferParams(seller, buyer, 2),
			setup: func(f *fixture) {
				f.flaky.FailTransition(settlement.Reserved, settlement.Escrowed, errors.New("journal unavailable"))
			},
			err:      exchange.ErrLedgerCommunication,
			released: true,
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.ex.Add(ctx, model.AccountOf(seller), addParams(100, 5)))
			if tc.setup != nil {
				tc.setup(f)
			}
			// funded after setup so a failing deposit leaves the instance short
			_ = f.ccd.Deposit(ctx, model.ContractOf(instance), 1000)

			_, err := f.ex.TransferCIS2(ctx, tc.sender, tc.params)
			require.ErrorIs(t, err, tc.err)

			assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 5}, f.listing(t, seller))
			assert.Zero(t, f.balance(t, model.AccountOf(seller)))
			assert.EqualValues(t, 5, f.tokens.Balance(token1, model.AccountOf(seller)))
			released, err := f.journal.ListByState(ctx, settlement.Released, settlement.Page{Limit: 10})
			require.NoError(t, err)
			if tc.released {
				require.Len(t, released, 1)
				assert.NotEmpty(t, released[0].LastError)
			} else {
				assert.Empty(t, released)
			}
			escrowed, err := f.journal.ListByState(ctx, settlement.Escrowed, settlement.Page{Limit: 10})
			require.NoError(t, err)
			assert.Empty(t, escrowed)
		})
	}
}

func TestTransferCIS2PayoutFailureLeavesTokensEscrowed(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tb.FailCode(uint16(currency.CodePayout), types.TransferExceedsCredits)

	id, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.ErrorIs(t, err, exchange.ErrCurrencyTransferFailed)
	code, ok := exchange.RejectCode(err)
	require.True(t, ok)
	assert.EqualValues(t, -11, code)
	require.NotEqual(t, uuid.Nil, id)

	// the token side is not rolled back
	assert.EqualValues(t, 3, f.tokens.Balance(token1, model.AccountOf(seller)))
	assert.EqualValues(t, 2, f.tokens.Balance(token1, model.ContractOf(instance)))
	assert.Zero(t, f.balance(t, model.AccountOf(seller)))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 5}, f.listing(t, seller))

	intent := f.intent(t, id)
	assert.Equal(t, settlement.Escrowed, intent.State)
	assert.NotEmpty(t, intent.LastError)
	assert.Equal(t, []model.EventKind{model.EventTokensListed}, f.eventKinds())

	f.tb.ClearFailures()

	err = f.ex.SettlePayout(ctx, model.AccountOf(seller), id)
	require.ErrorIs(t, err, exchange.ErrUnauthorized)

	require.NoError(t, f.ex.SettlePayout(ctx, model.AccountOf(instanceOwner), id))
	assert.EqualValues(t, 200, f.balance(t, model.AccountOf(seller)))
	assert.EqualValues(t, 800, f.balance(t, model.ContractOf(instance)))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 3}, f.listing(t, seller))
	assert.Equal(t, settlement.Settled, f.intent(t, id).State)
	assert.Equal(t, []model.EventKind{model.EventTokensListed, model.EventPayoutSettled}, f.eventKinds())

	err = f.ex.SettlePayout(ctx, model.AccountOf(instanceOwner), id)
	require.ErrorIs(t, err, exchange.ErrIntentNotPending)
	assert.EqualValues(t, 200, f.balance(t, model.AccountOf(seller)), "paid exactly once")
}

func TestSettlePayoutUnknownIntent(t *testing.T) {
	f := listedFixture(t)

	err := f.ex.SettlePayout(context.Background(), model.AccountOf(instanceOwner), uuid.New())
	require.ErrorIs(t, err, exchange.ErrIntentNotPending)
}

func TestSettlePayoutFailsAgain(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tb.FailCode(uint16(currency.CodePayout), types.TransferExceedsCredits)

	id, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.ErrorIs(t, err, exchange.ErrCurrencyTransferFailed)

	err = f.ex.SettlePayout(ctx, model.AccountOf(instanceOwner), id)
	require.ErrorIs(t, err, exchange.ErrCurrencyTransferFailed)
	assert.Equal(t, settlement.Escrowed, f.intent(t, id).State)
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 5}, f.listing(t, seller))
}

func TestEscrowedUnitsAreNotForSale(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tb.FailCode(uint16(currency.CodePayout), types.TransferExceedsCredits)

	id, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.ErrorIs(t, err, exchange.ErrCurrencyTransferFailed)
	f.tb.ClearFailures()
	f.escrow(2)

	// 2 of the 5 listed units wait for their payout
	err = f.ex.Transfer(ctx, model.AccountOf(buyer), 400, transferParams(seller, buyer, 4))
	require.ErrorIs(t, err, exchange.ErrInsufficientListedQuantity)
	require.NoError(t, f.ex.Transfer(ctx, model.AccountOf(buyer), 300, transferParams(seller, buyer, 3)))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 2}, f.listing(t, seller))

	require.NoError(t, f.ex.SettlePayout(ctx, model.AccountOf(instanceOwner), id))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 0}, f.listing(t, seller))
	assert.EqualValues(t, 200, f.balance(t, model.AccountOf(seller)))
}

func TestTransferCIS2CannotOversellEscrowedUnits(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tokens.SetBalance(token1, model.AccountOf(seller), 10)
	f.tb.FailCode(uint16(currency.CodePayout), types.TransferExceedsCredits)

	first, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 5))
	require.ErrorIs(t, err, exchange.ErrCurrencyTransferFailed)
	f.tb.ClearFailures()

	_, err = f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 5))
	require.ErrorIs(t, err, exchange.ErrInsufficientListedQuantity)
	_, err = f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 1))
	require.ErrorIs(t, err, exchange.ErrInsufficientListedQuantity)
	assert.EqualValues(t, 5, f.tokens.Balance(token1, model.AccountOf(seller)))

	require.NoError(t, f.ex.SettlePayout(ctx, model.AccountOf(instanceOwner), first))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 0}, f.listing(t, seller))
	assert.EqualValues(t, 500, f.balance(t, model.AccountOf(seller)), "paid for the listed quantity only")
	assert.EqualValues(t, 5, f.tokens.Balance(token1, model.ContractOf(instance)))
}

func TestSettlePayoutRefusesListingWithoutEscrowedUnits(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tb.FailCode(uint16(currency.CodePayout), types.TransferExceedsCredits)

	id, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.ErrorIs(t, err, exchange.ErrCurrencyTransferFailed)
	f.tb.ClearFailures()

	txn, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.PutListing(ctx, listingKey(seller), model.Listing[amount]{Price: 100, Quantity: 1}))
	require.NoError(t, txn.Commit())

	err = f.ex.SettlePayout(ctx, model.AccountOf(instanceOwner), id)
	require.ErrorIs(t, err, exchange.ErrInsufficientListedQuantity)
	assert.Equal(t, settlement.Escrowed, f.intent(t, id).State)
	assert.Zero(t, f.balance(t, model.AccountOf(seller)))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 1}, f.listing(t, seller))
}

func TestTransferCIS2EscrowsWithoutReceiveHook(t *testing.T) {
	f := listedFixture(t)
	f.tokens.OnReceive(nil)

	id, err := f.ex.TransferCIS2(context.Background(), model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.NoError(t, err)
	assert.Equal(t, settlement.Settled, f.intent(t, id).State)
	assert.EqualValues(t, 200, f.balance(t, model.AccountOf(seller)))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 3}, f.listing(t, seller))
}

func TestTransferCIS2ReturnsTokensWhenEscrowIsNotRecorded(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tokens.OnReceive(nil)
	f.flaky.FailTransition(settlement.Reserved, settlement.Escrowed, errors.New("journal unavailable"))

	id, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.Error(t, err)
	require.NotEqual(t, uuid.Nil, id)

	transfers := f.tokens.Calls(cis2.EntrypointTransfer)
	require.Len(t, transfers, 2, "tokens go out and come back")
	assert.EqualValues(t, 5, f.tokens.Balance(token1, model.AccountOf(seller)))
	assert.Zero(t, f.tokens.Balance(token1, model.ContractOf(instance)))
	assert.Zero(t, f.balance(t, model.AccountOf(seller)))
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 5}, f.listing(t, seller))

	intent := f.intent(t, id)
	assert.Equal(t, settlement.Released, intent.State)
	assert.Contains(t, intent.LastError, "journal unavailable")
}

func TestWorkerReleasesStaleReservedIntent(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tokens.SetOperator(model.AccountOf(seller), model.ContractOf(instance), false)
	f.flaky.FailTransition(settlement.Reserved, settlement.Released, errors.New("journal unavailable"))

	id, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.ErrorIs(t, err, exchange.ErrLedgerCommunication)
	assert.Equal(t, settlement.Reserved, f.intent(t, id).State)

	f.flaky.FailTransition(settlement.Reserved, settlement.Released, nil)
	f.tokens.SetOperator(model.AccountOf(seller), model.ContractOf(instance), true)

	// the stuck intent still holds its units
	_, err = f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 4))
	require.ErrorIs(t, err, exchange.ErrInsufficientListedQuantity)

	fresh := settlement.NewWorker(settlement.WorkerOpts{
		Journal: f.journal,
		Settler: f.ex,
		Logger:  log.TestingLogger(),
	})
	report, err := fresh.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Released, "younger than the reserve timeout")

	later := settlement.NewWorker(settlement.WorkerOpts{
		Journal: f.journal,
		Settler: f.ex,
		Now:     func() time.Time { return time.Now().Add(time.Hour) },
		Logger:  log.TestingLogger(),
	})
	report, err = later.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Report{Released: 1}, report)
	assert.Equal(t, settlement.Released, f.intent(t, id).State)

	_, err = f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 4))
	require.NoError(t, err)
	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 1}, f.listing(t, seller))
}

func TestWorkerSettlesEscrowedPayouts(t *testing.T) {
	f := listedFixture(t)
	ctx := context.Background()
	f.tb.FailCode(uint16(currency.CodePayout), types.TransferExceedsCredits)

	id, err := f.ex.TransferCIS2(ctx, model.AccountOf(seller), transferParams(seller, buyer, 2))
	require.ErrorIs(t, err, exchange.ErrCurrencyTransferFailed)

	worker := settlement.NewWorker(settlement.WorkerOpts{
		Journal: f.journal,
		Settler: f.ex,
		Logger:  log.TestingLogger(),
	})

	report, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Report{Failed: 1}, report)

	f.tb.ClearFailures()
	report, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Report{Settled: 1}, report)
	assert.Equal(t, settlement.Settled, f.intent(t, id).State)
	assert.EqualValues(t, 200, f.balance(t, model.AccountOf(seller)))
}
