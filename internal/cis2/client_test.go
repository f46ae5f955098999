package cis2_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/cis2/cis2test"
	"github.com/josidbobo/IDConcordiumDEX/internal/cis2/mocks"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

var (
	ledgerAddr = model.ContractAddress{Index: 7}
	exchange   = model.ContractOf(model.ContractAddress{Index: 1})
	alice      = model.AccountOf(model.AccountAddress{1})
	bob        = model.AccountOf(model.AccountAddress{2})
)

func newClient(inv cis2.Invoker) *cis2.Client[model.TokenIDU32, uint64] {
	return cis2.NewClient[model.TokenIDU32, uint64](inv, log.TestingLogger())
}

func TestResolveLedger(t *testing.T) {
	redirect := model.ContractAddress{Index: 99, Subindex: 1}
	testCases := []struct {
		name    string
		support cis2.SupportResult
		want    model.ContractAddress
		wantErr error
	}{
		{"supported", cis2.SupportResult{Kind: cis2.Supported}, ledgerAddr, nil},
		{"redirected", cis2.SupportResult{Kind: cis2.SupportedBy, Contracts: []model.ContractAddress{redirect, {Index: 5}}}, redirect, nil},
		{"empty redirect", cis2.SupportResult{Kind: cis2.SupportedBy}, model.ContractAddress{}, cis2.ErrCollectionNotSupported},
		{"not supported", cis2.SupportResult{Kind: cis2.NotSupported}, model.ContractAddress{}, cis2.ErrCollectionNotSupported},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ledger := cis2test.NewLedger(exchange)
			ledger.SetSupport(tc.support)

			got, err := newClient(ledger).ResolveLedger(context.Background(), ledgerAddr)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnsureOperatorAndBalance(t *testing.T) {
	ctx := context.Background()
	ledger := cis2test.NewLedger(exchange)
	client := newClient(ledger)
	id := model.TokenIDU32(3)

	require.ErrorIs(t, client.EnsureOperator(ctx, ledgerAddr, alice, exchange), cis2.ErrNotAuthorizedOperator)
	ledger.SetOperator(alice, exchange, true)
	require.NoError(t, client.EnsureOperator(ctx, ledgerAddr, alice, exchange))

	ledger.SetBalance(id, alice, 4)
	balance, err := client.BalanceOf(ctx, ledgerAddr, id, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 4, balance)
	require.NoError(t, client.EnsureBalance(ctx, ledgerAddr, id, alice, 4))
	require.ErrorIs(t, client.EnsureBalance(ctx, ledgerAddr, id, alice, 5), cis2.ErrInsufficientExternalBalance)
}

func TestTransferToContractNotifiesReceiver(t *testing.T) {
	ctx := context.Background()
	ledger := cis2test.NewLedger(exchange)
	client := newClient(ledger)
	id := model.TokenIDU32(3)
	ledger.SetBalance(id, alice, 10)
	ledger.SetOperator(alice, exchange, true)

	var got cis2.OnReceivingParams[model.TokenIDU32]
	ledger.OnReceive(func(ctx context.Context, from, to model.ContractAddress, entrypoint string, param []byte) error {
		assert.Equal(t, ledgerAddr, from)
		assert.Equal(t, exchange.Contract, to)
		assert.Equal(t, "onReceivingCIS2", entrypoint)
		return json.Unmarshal(param, &got)
	})

	err := client.Transfer(ctx, ledgerAddr, cis2.Transfer[model.TokenIDU32, uint64]{
		TokenID: id,
		Amount:  6,
		From:    alice,
		To:      cis2.ContractReceiver(exchange.Contract, "onReceivingCIS2"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, ledger.Balance(id, alice))
	assert.EqualValues(t, 6, ledger.Balance(id, exchange))
	assert.Equal(t, id, got.TokenID)
	assert.EqualValues(t, 6, got.TokenAmount())
	assert.Equal(t, alice, got.From)
}

func TestTransferRejectedWithoutOperator(t *testing.T) {
	ledger := cis2test.NewLedger(exchange)
	id := model.TokenIDU32(3)
	ledger.SetBalance(id, alice, 10)

	err := newClient(ledger).Transfer(context.Background(), ledgerAddr, cis2.Transfer[model.TokenIDU32, uint64]{
		TokenID: id,
		Amount:  1,
		From:    alice,
		To:      cis2.AccountReceiver(bob.Account),
	})
	require.ErrorIs(t, err, cis2.ErrLedgerCommunication)
	assert.EqualValues(t, 10, ledger.Balance(id, alice))
}

func TestTransportFailuresAreLedgerCommunicationErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	id := model.TokenIDU32(1)

	calls := map[string]func(c *cis2.Client[model.TokenIDU32, uint64]) error{
		cis2.EntrypointSupports: func(c *cis2.Client[model.TokenIDU32, uint64]) error {
			_, err := c.Supports(ctx, ledgerAddr)
			return err
		},
		cis2.EntrypointOperatorOf: func(c *cis2.Client[model.TokenIDU32, uint64]) error {
			return c.EnsureOperator(ctx, ledgerAddr, alice, exchange)
		},
		cis2.EntrypointBalanceOf: func(c *cis2.Client[model.TokenIDU32, uint64]) error {
			return c.EnsureBalance(ctx, ledgerAddr, id, alice, 1)
		},
		cis2.EntrypointTransfer: func(c *cis2.Client[model.TokenIDU32, uint64]) error {
			return c.Transfer(ctx, ledgerAddr, cis2.Transfer[model.TokenIDU32, uint64]{TokenID: id, Amount: 1, From: exchange, To: cis2.AccountReceiver(bob.Account)})
		},
	}
	for entrypoint, call := range calls {
		entrypoint, call := entrypoint, call
		t.Run(entrypoint, func(t *testing.T) {
			inv := mocks.NewInvoker(t)
			inv.On("Invoke", mock.Anything, ledgerAddr, entrypoint, mock.Anything, model.Amount(0)).
				Return(nil, boom).Once()

			err := call(newClient(inv))
			require.ErrorIs(t, err, cis2.ErrLedgerCommunication)
			assert.Contains(t, err.Error(), boom.Error())
		})
	}
}

func TestMalformedResponseIsLedgerCommunicationError(t *testing.T) {
	inv := mocks.NewInvoker(t)
	inv.On("Invoke", mock.Anything, ledgerAddr, cis2.EntrypointBalanceOf, mock.Anything, model.Amount(0)).
		Return([]byte(`["not a number"]`), nil).Once()

	_, err := newClient(inv).BalanceOf(context.Background(), ledgerAddr, 1, alice)
	require.ErrorIs(t, err, cis2.ErrLedgerCommunication)
}

func TestBalanceOverflowingAmountTypeIsClamped(t *testing.T) {
	inv := mocks.NewInvoker(t)
	inv.On("Invoke", mock.Anything, ledgerAddr, cis2.EntrypointBalanceOf, mock.Anything, model.Amount(0)).
		Return([]byte(`["256"]`), nil).Twice()

	client := cis2.NewClient[model.TokenIDU8, uint8](inv, log.NewNopLogger())
	balance, err := client.BalanceOf(context.Background(), ledgerAddr, 1, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 255, balance)
	require.NoError(t, client.EnsureBalance(context.Background(), ledgerAddr, 1, alice, 255))
}

func TestTransferRejectedByReceiverMovesNothing(t *testing.T) {
	ctx := context.Background()
	ledger := cis2test.NewLedger(exchange)
	id := model.TokenIDU32(3)
	ledger.SetBalance(id, alice, 10)
	ledger.SetOperator(alice, exchange, true)

	var during uint64
	ledger.OnReceive(func(ctx context.Context, from, to model.ContractAddress, entrypoint string, param []byte) error {
		during = ledger.Balance(id, exchange)
		return errors.New("paused")
	})

	err := newClient(ledger).Transfer(ctx, ledgerAddr, cis2.Transfer[model.TokenIDU32, uint64]{
		TokenID: id,
		Amount:  4,
		From:    alice,
		To:      cis2.ContractReceiver(exchange.Contract, "onReceivingCIS2"),
	})
	require.ErrorIs(t, err, cis2.ErrLedgerCommunication)
	assert.EqualValues(t, 4, during)
	assert.EqualValues(t, 10, ledger.Balance(id, alice))
	assert.Zero(t, ledger.Balance(id, exchange))
}

func TestTransferParameterShape(t *testing.T) {
	inv := mocks.NewInvoker(t)
	var param []byte
	inv.On("Invoke", mock.Anything, ledgerAddr, cis2.EntrypointTransfer, mock.Anything, model.Amount(0)).
		Run(func(args mock.Arguments) { param = args.Get(3).([]byte) }).
		Return([]byte("null"), nil).Once()

	err := newClient(inv).Transfer(context.Background(), ledgerAddr, cis2.Transfer[model.TokenIDU32, uint64]{
		TokenID: 1,
		Amount:  300,
		From:    exchange,
		To:      cis2.AccountReceiver(bob.Account),
		Data:    []byte{0xab},
	})
	require.NoError(t, err)

	var decoded []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(param, &decoded))
	require.Len(t, decoded, 1)
	assert.JSONEq(t, `"01000000"`, string(decoded[0]["token_id"]))
	assert.JSONEq(t, `"300"`, string(decoded[0]["amount"]))
	assert.JSONEq(t, `{"Contract":[{"index":1,"subindex":0}]}`, string(decoded[0]["from"]))
	assert.JSONEq(t, `{"Account":["`+bob.Account.String()+`"]}`, string(decoded[0]["to"]))
	assert.JSONEq(t, `"ab"`, string(decoded[0]["data"]))
}
