// Package currency keeps CCD balances of accounts and contract instances in
// TigerBeetle. Payments attached to an invocation are held as pending
// transfers and either posted or voided when the invocation finishes.
package currency

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
	"github.com/josidbobo/IDConcordiumDEX/pkg/util"
)

// CCDLedger is the TigerBeetle ledger holding micro-CCD.
const CCDLedger uint32 = 700

type Code uint16

const (
	CodeDeposit Code = 1005
	CodeRefund  Code = 2001
	CodePayment Code = 3001
	CodePayout  Code = 3002
)

const treasuryKey = "treasury"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownAccount    = errors.New("no currency account for address")
	ErrHoldFinished      = errors.New("hold already posted or voided")
)

// Client is the subset of the TigerBeetle client the ledger uses.
type Client interface {
	CreateAccounts(accounts []types.Account) ([]types.AccountEventResult, error)
	CreateTransfers(transfers []types.Transfer) ([]types.TransferEventResult, error)
	LookupAccounts(accountIDs []types.Uint128) ([]types.Account, error)
}

// Directory maps addresses to TigerBeetle account ids.
type Directory interface {
	Lookup(ctx context.Context, key string) (types.Uint128, bool, error)
	Save(ctx context.Context, key string, id types.Uint128, isContract bool) error
}

// Hold is a pending transfer reserving Amount on the debit account.
type Hold struct {
	ID     types.Uint128
	Debit  types.Uint128
	Credit types.Uint128
	Amount model.Amount
}

type Ledger struct {
	client Client
	dir    Directory
	logger log.Logger

	// serialises account creation
	openMtx sync.Mutex
}

type LedgerOpts struct {
	Client    Client
	Directory Directory
	Logger    log.Logger
}

func NewLedger(opts LedgerOpts) *Ledger {
	return &Ledger{
		client: opts.Client,
		dir:    opts.Directory,
		logger: opts.Logger.With("module", "currency"),
	}
}

// OpenTreasury creates the treasury account deposits are paid from. The
// treasury may run a negative balance.
func (l *Ledger) OpenTreasury(ctx context.Context) error {
	return l.open(ctx, treasuryKey, false, 0)
}

// Open creates the currency account of addr unless it exists. The account
// can never be overdrawn.
func (l *Ledger) Open(ctx context.Context, addr model.Address) error {
	flags := types.AccountFlags{DebitsMustNotExceedCredits: true, History: true}.ToUint16()
	return l.open(ctx, addr.String(), !addr.IsAccount(), flags)
}

func (l *Ledger) open(ctx context.Context, key string, isContract bool, flags uint16) error {
	l.openMtx.Lock()
	defer l.openMtx.Unlock()

	if _, ok, err := l.dir.Lookup(ctx, key); err != nil {
		return err
	} else if ok {
		return nil
	}

	id := types.ID()
	results, err := l.client.CreateAccounts([]types.Account{{
		ID:     id,
		Ledger: CCDLedger,
		Code:   1,
		Flags:  flags,
	}})
	if err != nil {
		return fmt.Errorf("create account for %s: %w", key, err)
	}
	for _, res := range results {
		if res.Result != types.AccountExists {
			return fmt.Errorf("create account for %s: %v", key, res.Result)
		}
	}
	if err := l.dir.Save(ctx, key, id, isContract); err != nil {
		return fmt.Errorf("save account of %s: %w", key, err)
	}
	l.logger.Info("currency account opened", "address", key, "tb_account", util.Uint128ToString(id))
	return nil
}

func (l *Ledger) accountID(ctx context.Context, key string) (types.Uint128, error) {
	id, ok, err := l.dir.Lookup(ctx, key)
	if err != nil {
		return types.Uint128{}, err
	}
	if !ok {
		return types.Uint128{}, fmt.Errorf("%w: %s", ErrUnknownAccount, key)
	}
	return id, nil
}

// Balance is the posted balance of addr minus the amount reserved by its
// pending holds.
func (l *Ledger) Balance(ctx context.Context, addr model.Address) (model.Amount, error) {
	id, err := l.accountID(ctx, addr.String())
	if err != nil {
		return 0, err
	}
	accounts, err := l.client.LookupAccounts([]types.Uint128{id})
	if err != nil {
		return 0, fmt.Errorf("lookup account of %s: %w", addr, err)
	}
	if len(accounts) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, addr)
	}
	acc := accounts[0]
	credits := acc.CreditsPosted.BigInt()
	debits := acc.DebitsPosted.BigInt()
	pending := acc.DebitsPending.BigInt()
	balance := credits.Sub(&credits, &debits)
	balance = balance.Sub(balance, &pending)
	if balance.Sign() < 0 {
		return 0, nil
	}
	if !balance.IsUint64() {
		return 0, fmt.Errorf("balance of %s overflows amount", addr)
	}
	return model.Amount(balance.Uint64()), nil
}

func (l *Ledger) create(transfer types.Transfer) error {
	results, err := l.client.CreateTransfers([]types.Transfer{transfer})
	if err != nil {
		return err
	}
	for _, res := range results {
		switch res.Result {
		case types.TransferExceedsCredits:
			return ErrInsufficientFunds
		case types.TransferPendingTransferAlreadyPosted, types.TransferPendingTransferAlreadyVoided, types.TransferPendingTransferNotFound:
			return fmt.Errorf("%w: %v", ErrHoldFinished, res.Result)
		default:
			return fmt.Errorf("transfer rejected: %v", res.Result)
		}
	}
	return nil
}

// Transfer moves amount from one address to another.
func (l *Ledger) Transfer(ctx context.Context, from, to model.Address, amount model.Amount, code Code) error {
	debit, err := l.accountID(ctx, from.String())
	if err != nil {
		return err
	}
	credit, err := l.accountID(ctx, to.String())
	if err != nil {
		return err
	}
	return l.create(types.Transfer{
		ID:              types.ID(),
		DebitAccountID:  debit,
		CreditAccountID: credit,
		Amount:          types.ToUint128(uint64(amount)),
		Ledger:          CCDLedger,
		Code:            uint16(code),
	})
}

// Deposit credits amount to addr from the treasury.
func (l *Ledger) Deposit(ctx context.Context, to model.Address, amount model.Amount) error {
	debit, err := l.accountID(ctx, treasuryKey)
	if err != nil {
		return err
	}
	credit, err := l.accountID(ctx, to.String())
	if err != nil {
		return err
	}
	return l.create(types.Transfer{
		ID:              types.ID(),
		DebitAccountID:  debit,
		CreditAccountID: credit,
		Amount:          types.ToUint128(uint64(amount)),
		Ledger:          CCDLedger,
		Code:            uint16(CodeDeposit),
	})
}

// Reserve holds amount on from for a later Post to to.
func (l *Ledger) Reserve(ctx context.Context, from, to model.Address, amount model.Amount) (Hold, error) {
	debit, err := l.accountID(ctx, from.String())
	if err != nil {
		return Hold{}, err
	}
	credit, err := l.accountID(ctx, to.String())
	if err != nil {
		return Hold{}, err
	}
	hold := Hold{ID: types.ID(), Debit: debit, Credit: credit, Amount: amount}
	err = l.create(types.Transfer{
		ID:              hold.ID,
		DebitAccountID:  debit,
		CreditAccountID: credit,
		Amount:          types.ToUint128(uint64(amount)),
		Ledger:          CCDLedger,
		Code:            uint16(CodePayment),
		Flags:           types.TransferFlags{Pending: true}.ToUint16(),
	})
	if err != nil {
		return Hold{}, err
	}
	return hold, nil
}

// Post completes a hold.
func (l *Ledger) Post(ctx context.Context, hold Hold) error {
	return l.finish(hold, types.TransferFlags{PostPendingTransfer: true})
}

// Void releases a hold back to the debit account.
func (l *Ledger) Void(ctx context.Context, hold Hold) error {
	return l.finish(hold, types.TransferFlags{VoidPendingTransfer: true})
}

func (l *Ledger) finish(hold Hold, flags types.TransferFlags) error {
	return l.create(types.Transfer{
		ID:              types.ID(),
		PendingID:       hold.ID,
		DebitAccountID:  hold.Debit,
		CreditAccountID: hold.Credit,
		Amount:          types.ToUint128(uint64(hold.Amount)),
		Ledger:          CCDLedger,
		Code:            uint16(CodePayment),
		Flags:           flags.ToUint16(),
	})
}
