package exchange_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/cis2/cis2test"
	"github.com/josidbobo/IDConcordiumDEX/internal/currency"
	"github.com/josidbobo/IDConcordiumDEX/internal/currency/tbtest"
	"github.com/josidbobo/IDConcordiumDEX/internal/exchange"
	"github.com/josidbobo/IDConcordiumDEX/internal/host"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

type (
	tokenID = model.TokenIDU32
	amount  = uint64
)

var (
	instance      = model.ContractAddress{Index: 7}
	collection    = model.ContractAddress{Index: 3}
	instanceOwner = model.AccountAddress{0xee}
	seller        = model.AccountAddress{0xa1}
	otherSeller   = model.AccountAddress{0xa2}
	buyer         = model.AccountAddress{0xb1}
	token1        = tokenID(1)
)

type fixture struct {
	ex       *exchange.Exchange[tokenID, amount]
	store    *listing.MemoryStore[tokenID, amount]
	tokens   *cis2test.Ledger
	tb       *tbtest.Client
	ccd      *currency.Ledger
	journal  *settlement.MemoryJournal
	flaky    *flakyJournal
	events   *exchange.RecordingSink
	received int
}

// newFixture wires an exchange instance to in-memory backends. The seller
// holds 5 units of token1 and has made the instance its operator; the buyer
// holds 10000 micro-CCD.
func newFixture(t require.TestingT) *fixture {
	ctx := context.Background()
	logger := log.NewNopLogger()
	self := model.ContractOf(instance)

	f := &fixture{
		store:   listing.NewMemoryStore[tokenID, amount](),
		tokens:  cis2test.NewLedger(self),
		tb:      tbtest.NewClient(),
		journal: settlement.NewMemoryJournal(),
		events:  &exchange.RecordingSink{},
	}
	f.flaky = &flakyJournal{MemoryJournal: f.journal}
	f.ccd = currency.NewLedger(currency.LedgerOpts{
		Client:    f.tb,
		Directory: currency.NewMemoryDirectory(),
		Logger:    logger,
	})
	require.NoError(t, f.ccd.OpenTreasury(ctx))
	for _, addr := range []model.Address{self, model.AccountOf(instanceOwner), model.AccountOf(seller), model.AccountOf(otherSeller), model.AccountOf(buyer)} {
		require.NoError(t, f.ccd.Open(ctx, addr))
	}
	require.NoError(t, f.ccd.Deposit(ctx, model.AccountOf(buyer), 10000))

	rt := host.NewRuntime(host.RuntimeOpts[listing.Txn[tokenID, amount]]{
		Self:     instance,
		Owner:    instanceOwner,
		State:    f.store,
		Currency: f.ccd,
		Logger:   logger,
	})
	f.ex = exchange.New(exchange.Opts[tokenID, amount]{
		Runtime: rt,
		Ledger:  cis2.NewClient[tokenID, amount](f.tokens, logger),
		Journal: f.flaky,
		Events:  f.events,
		Logger:  logger,
	})

	f.tokens.SetBalance(token1, model.AccountOf(seller), 5)
	f.tokens.SetOperator(model.AccountOf(seller), self, true)
	f.tokens.OnReceive(func(ctx context.Context, ledger, to model.ContractAddress, entrypoint string, param []byte) error {
		if to != instance || entrypoint != exchange.EntrypointOnReceiving {
			return cis2test.ErrRejected
		}
		f.received++
		return f.ex.OnReceivingCIS2(ctx, model.ContractOf(ledger), param)
	})
	return f
}

// flakyJournal fails chosen transitions of the journal it wraps.
type flakyJournal struct {
	*settlement.MemoryJournal

	mtx      sync.Mutex
	failures map[[2]settlement.State]error
}

// FailTransition makes every transition from one state to another fail with
// err. A nil err clears it.
func (j *flakyJournal) FailTransition(from, to settlement.State, err error) {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	if j.failures == nil {
		j.failures = make(map[[2]settlement.State]error)
	}
	if err == nil {
		delete(j.failures, [2]settlement.State{from, to})
		return
	}
	j.failures[[2]settlement.State{from, to}] = err
}

func (j *flakyJournal) Transition(ctx context.Context, id uuid.UUID, from, to settlement.State, lastError string) error {
	j.mtx.Lock()
	err := j.failures[[2]settlement.State{from, to}]
	j.mtx.Unlock()
	if err != nil {
		return err
	}
	return j.MemoryJournal.Transition(ctx, id, from, to, lastError)
}

func addParams(price model.Amount, quantity amount) exchange.AddParams[tokenID, amount] {
	return exchange.AddParams[tokenID, amount]{
		CISContractAddress: collection,
		TokenID:            token1,
		Price:              price,
		Quantity:           quantity,
	}
}

func transferParams(owner, to model.AccountAddress, quantity amount) exchange.TransferParams[tokenID, amount] {
	return exchange.TransferParams[tokenID, amount]{
		CISContractAddress: collection,
		TokenID:            token1,
		To:                 to,
		Owner:              owner,
		Quantity:           quantity,
	}
}

func listingKey(owner model.AccountAddress) model.ListingKey[tokenID] {
	return model.NewListingKey(model.TokenIdentity[tokenID]{ID: token1, Contract: collection}, owner)
}

func (f *fixture) listing(t require.TestingT, owner model.AccountAddress) *model.Listing[amount] {
	ctx := context.Background()
	txn, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer txn.Rollback()
	l, err := txn.GetListing(ctx, listingKey(owner))
	require.NoError(t, err)
	return l
}

func (f *fixture) balance(t require.TestingT, addr model.Address) model.Amount {
	b, err := f.ccd.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}

func (f *fixture) fundInstance(t require.TestingT, ccd model.Amount) {
	require.NoError(t, f.ccd.Deposit(context.Background(), model.ContractOf(instance), ccd))
}

// escrow gives the instance units of token1 to sell to buyers.
func (f *fixture) escrow(units uint64) {
	self := model.ContractOf(instance)
	f.tokens.SetBalance(token1, self, f.tokens.Balance(token1, self)+units)
}

func (f *fixture) eventKinds() []model.EventKind {
	kinds := make([]model.EventKind, 0, len(f.events.Events))
	for _, e := range f.events.Events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
