// Package cis2test provides an in-memory CIS2 token ledger speaking the JSON
// protocol of the cis2 client.
package cis2test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

var ErrRejected = errors.New("ledger rejected the call")

// Call records one invocation seen by the ledger.
type Call struct {
	Contract   model.ContractAddress
	Entrypoint string
	Param      json.RawMessage
}

// ReceiveHook is called for every transfer to a contract receiver after the
// balances moved. ledger is the address the transfer was invoked on.
type ReceiveHook func(ctx context.Context, ledger, to model.ContractAddress, entrypoint string, param []byte) error

// Ledger is a single-token-contract CIS2 ledger. The zero value is not
// usable; use NewLedger.
type Ledger struct {
	mtx sync.Mutex

	caller    model.Address
	support   cis2.SupportResult
	balances  map[string]map[string]uint64
	operators map[string]map[string]bool
	failures  map[string]error
	calls     []Call
	onReceive ReceiveHook
}

var _ cis2.Invoker = (*Ledger)(nil)

// NewLedger returns a ledger that reports CIS-2 support and executes every
// call on behalf of caller.
func NewLedger(caller model.Address) *Ledger {
	return &Ledger{
		caller:    caller,
		support:   cis2.SupportResult{Kind: cis2.Supported},
		balances:  make(map[string]map[string]uint64),
		operators: make(map[string]map[string]bool),
		failures:  make(map[string]error),
	}
}

func (l *Ledger) SetSupport(res cis2.SupportResult) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.support = res
}

func (l *Ledger) SetBalance(tokenID fmt.Stringer, owner model.Address, amount uint64) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.setBalance(tokenID.String(), owner.String(), amount)
}

func (l *Ledger) Balance(tokenID fmt.Stringer, owner model.Address) uint64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.balances[tokenID.String()][owner.String()]
}

func (l *Ledger) setBalance(token, owner string, amount uint64) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[string]uint64)
	}
	l.balances[token][owner] = amount
}

func (l *Ledger) SetOperator(owner, operator model.Address, enabled bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.operators[owner.String()] == nil {
		l.operators[owner.String()] = make(map[string]bool)
	}
	l.operators[owner.String()][operator.String()] = enabled
}

// FailOn makes every call of entrypoint return err. A nil err clears it.
func (l *Ledger) FailOn(entrypoint string, err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err == nil {
		delete(l.failures, entrypoint)
		return
	}
	l.failures[entrypoint] = err
}

func (l *Ledger) OnReceive(hook ReceiveHook) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.onReceive = hook
}

// Calls returns the calls of entrypoint, or all calls for an empty entrypoint.
func (l *Ledger) Calls(entrypoint string) []Call {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	var out []Call
	for _, c := range l.calls {
		if entrypoint == "" || c.Entrypoint == entrypoint {
			out = append(out, c)
		}
	}
	return out
}

type rawTransfer struct {
	TokenID string        `json:"token_id"`
	Amount  string        `json:"amount"`
	From    model.Address `json:"from"`
	To      cis2.Receiver `json:"to"`
	Data    string        `json:"data"`
}

type rawBalanceQuery struct {
	TokenID string        `json:"token_id"`
	Address model.Address `json:"address"`
}

type rawOperatorQuery struct {
	Owner   model.Address `json:"owner"`
	Address model.Address `json:"address"`
}

func (l *Ledger) Invoke(ctx context.Context, contract model.ContractAddress, entrypoint string, param []byte, amount model.Amount) ([]byte, error) {
	l.mtx.Lock()
	l.calls = append(l.calls, Call{Contract: contract, Entrypoint: entrypoint, Param: append(json.RawMessage(nil), param...)})
	if err := l.failures[entrypoint]; err != nil {
		l.mtx.Unlock()
		return nil, err
	}

	switch entrypoint {
	case cis2.EntrypointSupports:
		defer l.mtx.Unlock()
		return json.Marshal([]cis2.SupportResult{l.support})

	case cis2.EntrypointOperatorOf:
		defer l.mtx.Unlock()
		var queries []rawOperatorQuery
		if err := json.Unmarshal(param, &queries); err != nil {
			return nil, err
		}
		out := make([]bool, len(queries))
		for i, q := range queries {
			out[i] = l.operators[q.Owner.String()][q.Address.String()]
		}
		return json.Marshal(out)

	case cis2.EntrypointBalanceOf:
		defer l.mtx.Unlock()
		var queries []rawBalanceQuery
		if err := json.Unmarshal(param, &queries); err != nil {
			return nil, err
		}
		out := make([]string, len(queries))
		for i, q := range queries {
			out[i] = strconv.FormatUint(l.balances[q.TokenID][q.Address.String()], 10)
		}
		return json.Marshal(out)

	case cis2.EntrypointTransfer:
		deltas, receipts, err := l.prepareTransfer(param)
		if err == nil {
			err = l.apply(deltas)
		}
		hook := l.onReceive
		l.mtx.Unlock()
		if err != nil {
			return nil, err
		}
		// a rejecting receiver undoes the whole transfer
		for _, r := range receipts {
			if hook == nil {
				continue
			}
			if err := hook(ctx, contract, r.contract, r.entrypoint, r.param); err != nil {
				l.mtx.Lock()
				defer l.mtx.Unlock()
				if rErr := l.apply(reverse(deltas)); rErr != nil {
					return nil, fmt.Errorf("receive hook: %w (reverting: %v)", err, rErr)
				}
				return nil, fmt.Errorf("receive hook: %w", err)
			}
		}
		return []byte("null"), nil
	}

	l.mtx.Unlock()
	return nil, fmt.Errorf("%w: unknown entrypoint %q", ErrRejected, entrypoint)
}

type receipt struct {
	contract   model.ContractAddress
	entrypoint string
	param      []byte
}

type delta struct {
	token, from, to string
	amount          uint64
}

// prepareTransfer checks the transfers and returns the balance changes they
// make together with the receive hooks to call.
func (l *Ledger) prepareTransfer(param []byte) ([]delta, []receipt, error) {
	var transfers []rawTransfer
	if err := json.Unmarshal(param, &transfers); err != nil {
		return nil, nil, err
	}
	deltas := make([]delta, 0, len(transfers))
	var receipts []receipt
	for _, t := range transfers {
		amount, err := strconv.ParseUint(t.Amount, 10, 64)
		if err != nil {
			return nil, nil, err
		}
		from := t.From.String()
		if from != l.caller.String() && !l.operators[from][l.caller.String()] {
			return nil, nil, fmt.Errorf("%w: %s is not an operator of %s", ErrRejected, l.caller, t.From)
		}
		deltas = append(deltas, delta{token: t.TokenID, from: from, to: t.To.Address.String(), amount: amount})
		if !t.To.Address.IsAccount() {
			hookParam, err := json.Marshal(map[string]interface{}{
				"token_id": t.TokenID,
				"amount":   t.Amount,
				"from":     t.From,
				"data":     t.Data,
			})
			if err != nil {
				return nil, nil, err
			}
			receipts = append(receipts, receipt{contract: t.To.Address.Contract, entrypoint: t.To.Entrypoint, param: hookParam})
		}
	}
	if err := l.checkFunds(deltas); err != nil {
		return nil, nil, err
	}
	return deltas, receipts, nil
}

func (l *Ledger) checkFunds(deltas []delta) error {
	spent := make(map[[2]string]uint64)
	for _, d := range deltas {
		k := [2]string{d.token, d.from}
		spent[k] += d.amount
		if l.balances[d.token][d.from] < spent[k] {
			return fmt.Errorf("%w: insufficient funds", ErrRejected)
		}
	}
	return nil
}

func reverse(deltas []delta) []delta {
	out := make([]delta, len(deltas))
	for i, d := range deltas {
		out[len(deltas)-1-i] = delta{token: d.token, from: d.to, to: d.from, amount: d.amount}
	}
	return out
}

// apply moves all balances or none of them.
func (l *Ledger) apply(deltas []delta) error {
	if err := l.checkFunds(deltas); err != nil {
		return err
	}
	for _, d := range deltas {
		l.setBalance(d.token, d.from, l.balances[d.token][d.from]-d.amount)
		l.setBalance(d.token, d.to, l.balances[d.token][d.to]+d.amount)
	}
	return nil
}
