// Package cis2 talks to external CIS2 token ledgers. Every query and command
// is a single attempt; transport failures surface as ErrLedgerCommunication.
package cis2

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

var (
	ErrLedgerCommunication         = errors.New("ledger communication failed")
	ErrCollectionNotSupported      = errors.New("collection does not support CIS-2")
	ErrNotAuthorizedOperator       = errors.New("exchange is not an operator of the owner")
	ErrInsufficientExternalBalance = errors.New("owner balance below requested quantity")
)

//go:generate mockery --case underscore --name Invoker

// Invoker calls an entrypoint of a ledger contract with a JSON parameter and
// returns the JSON return value.
type Invoker interface {
	Invoke(ctx context.Context, contract model.ContractAddress, entrypoint string, param []byte, amount model.Amount) ([]byte, error)
}

type Client[T model.TokenID, A model.TokenAmount] struct {
	invoker Invoker
	logger  log.Logger
}

func NewClient[T model.TokenID, A model.TokenAmount](invoker Invoker, logger log.Logger) *Client[T, A] {
	return &Client[T, A]{invoker: invoker, logger: logger.With("module", "cis2")}
}

func hexString(data []byte) string {
	return hex.EncodeToString(data)
}

func (c *Client[T, A]) call(ctx context.Context, addr model.ContractAddress, entrypoint string, param interface{}, result interface{}) error {
	bz, err := json.Marshal(param)
	if err != nil {
		return fmt.Errorf("encode %s parameter: %w", entrypoint, err)
	}
	ret, err := c.invoker.Invoke(ctx, addr, entrypoint, bz, 0)
	if err != nil {
		c.logger.Debug("ledger call failed", "contract", addr, "entrypoint", entrypoint, "err", err)
		return fmt.Errorf("%w: %s on %s: %v", ErrLedgerCommunication, entrypoint, addr, err)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(ret, result); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrLedgerCommunication, entrypoint, err)
	}
	return nil
}

// Supports asks addr whether it implements the CIS-2 standard.
func (c *Client[T, A]) Supports(ctx context.Context, addr model.ContractAddress) (SupportResult, error) {
	var results []SupportResult
	if err := c.call(ctx, addr, EntrypointSupports, []string{StandardIdentifier}, &results); err != nil {
		return SupportResult{}, err
	}
	if len(results) != 1 {
		return SupportResult{}, fmt.Errorf("%w: supports returned %d results", ErrLedgerCommunication, len(results))
	}
	return results[0], nil
}

// ResolveLedger returns the contract that implements CIS-2 for addr: addr
// itself, or the first contract it redirects to.
func (c *Client[T, A]) ResolveLedger(ctx context.Context, addr model.ContractAddress) (model.ContractAddress, error) {
	res, err := c.Supports(ctx, addr)
	if err != nil {
		return model.ContractAddress{}, err
	}
	switch res.Kind {
	case Supported:
		return addr, nil
	case SupportedBy:
		if len(res.Contracts) == 0 {
			return model.ContractAddress{}, ErrCollectionNotSupported
		}
		return res.Contracts[0], nil
	default:
		return model.ContractAddress{}, ErrCollectionNotSupported
	}
}

func (c *Client[T, A]) OperatorOf(ctx context.Context, addr model.ContractAddress, owner, operator model.Address) (bool, error) {
	var results []bool
	query := []operatorQuery{{Owner: owner, Address: operator}}
	if err := c.call(ctx, addr, EntrypointOperatorOf, query, &results); err != nil {
		return false, err
	}
	if len(results) != 1 {
		return false, fmt.Errorf("%w: operatorOf returned %d results", ErrLedgerCommunication, len(results))
	}
	return results[0], nil
}

// EnsureOperator fails with ErrNotAuthorizedOperator unless operator may move
// the tokens of owner.
func (c *Client[T, A]) EnsureOperator(ctx context.Context, addr model.ContractAddress, owner, operator model.Address) error {
	ok, err := c.OperatorOf(ctx, addr, owner, operator)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorizedOperator
	}
	return nil
}

func (c *Client[T, A]) BalanceOf(ctx context.Context, addr model.ContractAddress, id T, owner model.Address) (A, error) {
	var results []amountString
	query := []balanceQuery[T]{{TokenID: id, Address: owner}}
	if err := c.call(ctx, addr, EntrypointBalanceOf, query, &results); err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("%w: balanceOf returned %d results", ErrLedgerCommunication, len(results))
	}
	// a balance wider than A covers every quantity A can express
	if limit := ^A(0); uint64(results[0]) > uint64(limit) {
		return limit, nil
	}
	return A(results[0]), nil
}

// EnsureBalance fails with ErrInsufficientExternalBalance when owner holds
// less than quantity of id.
func (c *Client[T, A]) EnsureBalance(ctx context.Context, addr model.ContractAddress, id T, owner model.Address, quantity A) error {
	balance, err := c.BalanceOf(ctx, addr, id, owner)
	if err != nil {
		return err
	}
	if balance < quantity {
		return ErrInsufficientExternalBalance
	}
	return nil
}

// Transfer issues the transfer command for a single transfer.
func (c *Client[T, A]) Transfer(ctx context.Context, addr model.ContractAddress, t Transfer[T, A]) error {
	param := []transferParam[T]{{
		TokenID: t.TokenID,
		Amount:  amountString(t.Amount),
		From:    t.From,
		To:      t.To,
		Data:    hexString(t.Data),
	}}
	if err := c.call(ctx, addr, EntrypointTransfer, param, nil); err != nil {
		return err
	}
	c.logger.Debug("tokens transferred", "contract", addr, "token", t.TokenID, "amount", uint64(t.Amount), "from", t.From, "to", t.To.Address)
	return nil
}
