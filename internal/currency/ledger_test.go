package currency_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/internal/currency"
	"github.com/josidbobo/IDConcordiumDEX/internal/currency/tbtest"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

var (
	alice    = model.AccountOf(model.AccountAddress{1})
	bob      = model.AccountOf(model.AccountAddress{2})
	instance = model.ContractOf(model.ContractAddress{Index: 1})
)

func newLedger(t *testing.T) (*currency.Ledger, *tbtest.Client) {
	t.Helper()
	client := tbtest.NewClient()
	l := currency.NewLedger(currency.LedgerOpts{
		Client:    client,
		Directory: currency.NewMemoryDirectory(),
		Logger:    log.TestingLogger(),
	})
	ctx := context.Background()
	require.NoError(t, l.OpenTreasury(ctx))
	for _, addr := range []model.Address{alice, bob, instance} {
		require.NoError(t, l.Open(ctx, addr))
	}
	return l, client
}

func balance(t *testing.T, l *currency.Ledger, addr model.Address) model.Amount {
	t.Helper()
	b, err := l.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}

func TestOpenIsIdempotent(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, alice, 10))
	require.NoError(t, l.Open(ctx, alice))
	assert.EqualValues(t, 10, balance(t, l, alice))
}

func TestUnknownAccount(t *testing.T) {
	l, _ := newLedger(t)
	stranger := model.AccountOf(model.AccountAddress{9})
	_, err := l.Balance(context.Background(), stranger)
	require.ErrorIs(t, err, currency.ErrUnknownAccount)
	require.ErrorIs(t, l.Transfer(context.Background(), alice, stranger, 1, currency.CodePayout), currency.ErrUnknownAccount)
}

func TestTransferCannotOverdraw(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, alice, 100))

	require.NoError(t, l.Transfer(ctx, alice, bob, 60, currency.CodePayout))
	require.ErrorIs(t, l.Transfer(ctx, alice, bob, 41, currency.CodePayout), currency.ErrInsufficientFunds)

	assert.EqualValues(t, 40, balance(t, l, alice))
	assert.EqualValues(t, 60, balance(t, l, bob))
}

func TestHoldPostAndVoid(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, alice, 500))

	posted, err := l.Reserve(ctx, alice, instance, 300)
	require.NoError(t, err)
	assert.EqualValues(t, 200, balance(t, l, alice), "held amount is not spendable")
	assert.EqualValues(t, 0, balance(t, l, instance), "held amount is not credited yet")

	_, err = l.Reserve(ctx, alice, instance, 201)
	require.ErrorIs(t, err, currency.ErrInsufficientFunds)

	require.NoError(t, l.Post(ctx, posted))
	assert.EqualValues(t, 200, balance(t, l, alice))
	assert.EqualValues(t, 300, balance(t, l, instance))
	require.ErrorIs(t, l.Void(ctx, posted), currency.ErrHoldFinished)

	voided, err := l.Reserve(ctx, alice, instance, 200)
	require.NoError(t, err)
	require.NoError(t, l.Void(ctx, voided))
	assert.EqualValues(t, 200, balance(t, l, alice))
	assert.EqualValues(t, 300, balance(t, l, instance))
	require.ErrorIs(t, l.Post(ctx, voided), currency.ErrHoldFinished)
}

func TestRejectedTransfer(t *testing.T) {
	l, client := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, instance, 100))

	client.FailCode(uint16(currency.CodePayout), types.TransferExceedsDebits)
	err := l.Transfer(ctx, instance, alice, 10, currency.CodePayout)
	require.Error(t, err)
	assert.NotErrorIs(t, err, currency.ErrInsufficientFunds)

	client.ClearFailures()
	require.NoError(t, l.Transfer(ctx, instance, alice, 10, currency.CodePayout))
	assert.Len(t, client.Transfers(uint16(currency.CodePayout)), 1)
}
