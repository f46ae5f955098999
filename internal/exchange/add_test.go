package exchange_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/exchange"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

func TestAddCreatesListing(t *testing.T) {
	f := newFixture(t)

	err := f.ex.Add(context.Background(), model.AccountOf(seller), addParams(100, 5))
	require.NoError(t, err)

	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 5}, f.listing(t, seller))
	assert.EqualValues(t, 5, f.tokens.Balance(token1, model.AccountOf(seller)), "add does not move tokens")
	assert.Equal(t, []model.EventKind{model.EventTokensListed}, f.eventKinds())
	assert.Equal(t, seller, f.events.Events[0].Owner)
	assert.EqualValues(t, 100, f.events.Events[0].Price)
}

func TestAddIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tokens.SetBalance(token1, model.AccountOf(seller), 9)

	require.NoError(t, f.ex.Add(ctx, model.AccountOf(seller), addParams(100, 5)))
	require.NoError(t, f.ex.Add(ctx, model.AccountOf(seller), addParams(250, 9)))

	assert.Equal(t, &model.Listing[amount]{Price: 100, Quantity: 5}, f.listing(t, seller))
	assert.Len(t, f.events.Events, 1, "second add emits nothing")
}

func TestAddFollowsSupportRedirect(t *testing.T) {
	f := newFixture(t)
	implementation := model.ContractAddress{Index: 99}
	f.tokens.SetSupport(cis2.SupportResult{Kind: cis2.SupportedBy, Contracts: []model.ContractAddress{implementation}})

	require.NoError(t, f.ex.Add(context.Background(), model.AccountOf(seller), addParams(100, 5)))

	calls := f.tokens.Calls(cis2.EntrypointBalanceOf)
	require.Len(t, calls, 1)
	assert.Equal(t, implementation, calls[0].Contract)
	assert.Equal(t, collection, f.tokens.Calls(cis2.EntrypointSupports)[0].Contract)
}

func TestAddRejections(t *testing.T) {
	testCases := map[string]struct {
		setup  func(f *fixture)
		sender model.Address
		params exchange.AddParams[tokenID, amount]
		err    error
		code   int32
	}{
		"zero quantity": {
			sender: model.AccountOf(seller),
			params: addParams(100, 0),
			err:    exchange.ErrParameterDecode,
			code:   -1,
		},
		"contract caller": {
			setup: func(f *fixture) {
				f.tokens.SetSupport(cis2.SupportResult{Kind: cis2.NotSupported})
			},
			sender: model.ContractOf(model.ContractAddress{Index: 12}),
			params: addParams(100, 5),
			err:    exchange.ErrCallerIsContract,
			code:   -2,
		},
		"unsupported collection": {
			setup: func(f *fixture) {
				f.tokens.SetSupport(cis2.SupportResult{Kind: cis2.NotSupported})
			},
			sender: model.AccountOf(seller),
			params: addParams(100, 5),
			err:    exchange.ErrCollectionNotSupported,
			code:   -3,
		},
		"redirect without target": {
			setup: func(f *fixture) {
				f.tokens.SetSupport(cis2.SupportResult{Kind: cis2.SupportedBy})
			},
			sender: model.AccountOf(seller),
			params: addParams(100, 5),
			err:    exchange.ErrCollectionNotSupported,
			code:   -3,
		},
		"exchange not operator": {
			setup: func(f *fixture) {
				f.tokens.SetOperator(model.AccountOf(seller), model.ContractOf(instance), false)
			},
			sender: model.AccountOf(seller),
			params: addParams(100, 5),
			err:    exchange.ErrNotAuthorizedOperator,
			code:   -4,
		},
		"balance below quantity": {
			sender: model.AccountOf(seller),
			params: addParams(100, 6),
			err:    exchange.ErrInsufficientExternalBalance,
			code:   -5,
		},
		"ledger unreachable": {
			setup: func(f *fixture) {
				f.tokens.FailOn(cis2.EntrypointSupports, errors.New("connection refused"))
			},
			sender: model.AccountOf(seller),
			params: addParams(100, 5),
			err:    exchange.ErrLedgerCommunication,
			code:   -10,
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}

			err := f.ex.Add(context.Background(), tc.sender, tc.params)
			require.ErrorIs(t, err, tc.err)
			code, ok := exchange.RejectCode(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, code)

			assert.Nil(t, f.listing(t, seller))
			assert.Zero(t, f.store.Len())
			assert.Empty(t, f.events.Events)
		})
	}
}
