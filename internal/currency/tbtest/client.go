// Package tbtest is an in-memory stand-in for a TigerBeetle cluster covering
// the account and transfer operations the currency ledger issues.
package tbtest

import (
	"sync"

	"github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/pkg/util"
)

type Client struct {
	mtx       sync.Mutex
	accounts  map[types.Uint128]*types.Account
	transfers map[types.Uint128]types.Transfer
	finished  map[types.Uint128]types.CreateTransferResult
	failCodes map[uint16]types.CreateTransferResult
}

func NewClient() *Client {
	return &Client{
		accounts:  make(map[types.Uint128]*types.Account),
		transfers: make(map[types.Uint128]types.Transfer),
		finished:  make(map[types.Uint128]types.CreateTransferResult),
		failCodes: make(map[uint16]types.CreateTransferResult),
	}
}

// FailCode rejects every transfer carrying code with result until cleared
// with ClearFailures.
func (c *Client) FailCode(code uint16, result types.CreateTransferResult) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.failCodes[code] = result
}

func (c *Client) ClearFailures() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.failCodes = make(map[uint16]types.CreateTransferResult)
}

// Transfers returns the accepted transfers with the given code.
func (c *Client) Transfers(code uint16) []types.Transfer {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	var out []types.Transfer
	for _, t := range c.transfers {
		if t.Code == code {
			out = append(out, t)
		}
	}
	return out
}

func (c *Client) CreateAccounts(accounts []types.Account) ([]types.AccountEventResult, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	var results []types.AccountEventResult
	for i, a := range accounts {
		if _, ok := c.accounts[a.ID]; ok {
			results = append(results, types.AccountEventResult{Index: uint32(i), Result: types.AccountExists})
			continue
		}
		acc := a
		c.accounts[a.ID] = &acc
	}
	return results, nil
}

func (c *Client) LookupAccounts(ids []types.Uint128) ([]types.Account, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	out := make([]types.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := c.accounts[id]; ok {
			out = append(out, *acc)
		}
	}
	return out, nil
}

func (c *Client) CreateTransfers(transfers []types.Transfer) ([]types.TransferEventResult, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	var results []types.TransferEventResult
	for i, t := range transfers {
		if res, failed := c.apply(t); failed {
			results = append(results, types.TransferEventResult{Index: uint32(i), Result: res})
		}
	}
	return results, nil
}

func get(v types.Uint128) uint64 {
	n, _ := util.Uint128ToUint64(v)
	return n
}

func add(v types.Uint128, delta uint64) types.Uint128 {
	return types.ToUint128(get(v) + delta)
}

func sub(v types.Uint128, delta uint64) types.Uint128 {
	return types.ToUint128(get(v) - delta)
}

func (c *Client) apply(t types.Transfer) (types.CreateTransferResult, bool) {
	if res, ok := c.failCodes[t.Code]; ok {
		return res, true
	}
	if _, ok := c.transfers[t.ID]; ok {
		return types.TransferExists, true
	}
	flags := t.TransferFlags()

	if flags.PostPendingTransfer || flags.VoidPendingTransfer {
		pending, ok := c.transfers[t.PendingID]
		if !ok || !pending.TransferFlags().Pending {
			return types.TransferPendingTransferNotFound, true
		}
		if res, done := c.finished[t.PendingID]; done {
			return res, true
		}
		amount := get(pending.Amount)
		debit, credit := c.accounts[pending.DebitAccountID], c.accounts[pending.CreditAccountID]
		debit.DebitsPending = sub(debit.DebitsPending, amount)
		credit.CreditsPending = sub(credit.CreditsPending, amount)
		if flags.PostPendingTransfer {
			debit.DebitsPosted = add(debit.DebitsPosted, amount)
			credit.CreditsPosted = add(credit.CreditsPosted, amount)
			c.finished[t.PendingID] = types.TransferPendingTransferAlreadyPosted
		} else {
			c.finished[t.PendingID] = types.TransferPendingTransferAlreadyVoided
		}
		c.transfers[t.ID] = t
		return 0, false
	}

	debit, ok := c.accounts[t.DebitAccountID]
	if !ok {
		return types.TransferDebitAccountNotFound, true
	}
	credit, ok := c.accounts[t.CreditAccountID]
	if !ok {
		return types.TransferCreditAccountNotFound, true
	}
	amount := get(t.Amount)
	if debit.AccountFlags().DebitsMustNotExceedCredits &&
		get(debit.DebitsPending)+get(debit.DebitsPosted)+amount > get(debit.CreditsPosted) {
		return types.TransferExceedsCredits, true
	}
	if flags.Pending {
		debit.DebitsPending = add(debit.DebitsPending, amount)
		credit.CreditsPending = add(credit.CreditsPending, amount)
	} else {
		debit.DebitsPosted = add(debit.DebitsPosted, amount)
		credit.CreditsPosted = add(credit.CreditsPosted, amount)
	}
	c.transfers[t.ID] = t
	return 0, false
}
