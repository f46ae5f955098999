package main

import (
	"context"
	"os"

	"github.com/tigerbeetle/tigerbeetle-go/pkg/types"

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
	tokenID = model.TokenIDU8
	amount  = uint64
)

func main() {
	ctx := context.Background()
	logger := log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)
	check := func(step string, err error) {
		if err != nil {
			logger.Error(step, "err", err)
			os.Exit(1)
		}
	}

	instance := model.ContractAddress{Index: 1}
	collection := model.ContractAddress{Index: 2}
	owner := model.AccountAddress{0x01}
	seller := model.AccountAddress{0x02}
	buyer := model.AccountAddress{0x03}
	self := model.ContractOf(instance)

	tokens := cis2test.NewLedger(self)
	tb := tbtest.NewClient()
	ccd := currency.NewLedger(currency.LedgerOpts{Client: tb, Directory: currency.NewMemoryDirectory(), Logger: logger})
	check("open treasury", ccd.OpenTreasury(ctx))
	for _, addr := range []model.Address{self, model.AccountOf(owner), model.AccountOf(seller), model.AccountOf(buyer)} {
		check("open account", ccd.Open(ctx, addr))
	}
	check("deposit", ccd.Deposit(ctx, model.AccountOf(buyer), 1_000))

	journal := settlement.NewMemoryJournal()
	ex := exchange.New(exchange.Opts[tokenID, amount]{
		Runtime: host.NewRuntime(host.RuntimeOpts[listing.Txn[tokenID, amount]]{
			Self:     instance,
			Owner:    owner,
			State:    exchange.Init[tokenID, amount](exchange.InitParams{Amount: 16}),
			Currency: ccd,
			Logger:   logger,
		}),
		Ledger:  cis2.NewClient[tokenID, amount](tokens, logger),
		Journal: journal,
		Logger:  logger,
	})
	tokens.OnReceive(func(ctx context.Context, ledger, to model.ContractAddress, entrypoint string, param []byte) error {
		return ex.OnReceivingCIS2(ctx, model.ContractOf(ledger), param)
	})

	tokens.SetBalance(tokenID(1), model.AccountOf(seller), 10)
	tokens.SetOperator(model.AccountOf(seller), self, true)
	tokens.SetBalance(tokenID(1), self, 10)

	add := exchange.AddParams[tokenID, amount]{CISContractAddress: collection, TokenID: 1, Price: 100, Quantity: 5}
	check("add", ex.Add(ctx, model.AccountOf(seller), add))
	// adding the same listing twice leaves one listing
	check("add again", ex.Add(ctx, model.AccountOf(seller), add))

	buy := exchange.TransferParams[tokenID, amount]{CISContractAddress: collection, TokenID: 1, To: buyer, Owner: seller, Quantity: 3}
	err := ex.Transfer(ctx, model.AccountOf(buyer), 299, buy)
	code, _ := exchange.RejectCode(err)
	logger.Info("underpaid transfer", "code", code, "err", err)
	check("transfer", ex.Transfer(ctx, model.AccountOf(buyer), 300, buy))

	items, err := ex.List(ctx)
	check("list", err)
	for _, item := range items {
		logger.Info("listing after purchase", "owner", item.Owner, "quantity", item.Quantity)
	}

	check("fund instance", ccd.Deposit(ctx, self, 1_000))

	// the first payout attempt fails and leaves the tokens escrowed
	tb.FailCode(uint16(currency.CodePayout), types.TransferExceedsCredits)
	sell := exchange.TransferParams[tokenID, amount]{CISContractAddress: collection, TokenID: 1, Owner: seller, Quantity: 2}
	intent, err := ex.TransferCIS2(ctx, model.AccountOf(seller), sell)
	code, _ = exchange.RejectCode(err)
	logger.Info("transfer_cis2 payout failed", "intent", intent, "code", code, "err", err)

	// escrowed units are held back until the payout settles
	buy.Quantity = 1
	err = ex.Transfer(ctx, model.AccountOf(buyer), 100, buy)
	code, _ = exchange.RejectCode(err)
	logger.Info("purchase of escrowed units", "code", code, "err", err)

	tb.ClearFailures()
	check("settle", ex.SettlePayout(ctx, model.AccountOf(owner), intent))
	settled, err := journal.Get(ctx, intent)
	check("journal", err)
	logger.Info("payout settled", "intent", intent, "state", settled.State)

	depth, err := ex.Depth(ctx, add.Token(), 0)
	check("depth", err)
	for _, level := range depth.Asks {
		logger.Info("ask", "price", level.Price, "volume", level.Volume, "listings", level.ListingCount)
	}

	view, err := ex.View(ctx)
	check("view", err)
	logger.Info("instance", "balance", view.Balance, "active_listings", view.ActiveListings)
}
