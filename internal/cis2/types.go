package cis2

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// StandardIdentifier is the standard every token ledger is probed for.
const StandardIdentifier = "CIS-2"

// Entrypoints of a CIS2 token contract.
const (
	EntrypointSupports   = "supports"
	EntrypointOperatorOf = "operatorOf"
	EntrypointBalanceOf  = "balanceOf"
	EntrypointTransfer   = "transfer"
)

type SupportKind uint8

const (
	NotSupported SupportKind = iota
	Supported
	SupportedBy
)

// SupportResult is the answer of a supports query. Contracts is only set for
// SupportedBy and lists the contracts implementing the standard instead.
type SupportResult struct {
	Kind      SupportKind
	Contracts []model.ContractAddress
}

func (r *SupportResult) UnmarshalJSON(data []byte) error {
	var tagged struct {
		NoSupport *json.RawMessage           `json:"NoSupport"`
		Support   *json.RawMessage           `json:"Support"`
		SupportBy *[][]model.ContractAddress `json:"SupportBy"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	switch {
	case tagged.Support != nil:
		*r = SupportResult{Kind: Supported}
	case tagged.SupportBy != nil:
		var contracts []model.ContractAddress
		if len(*tagged.SupportBy) > 0 {
			contracts = (*tagged.SupportBy)[0]
		}
		*r = SupportResult{Kind: SupportedBy, Contracts: contracts}
	case tagged.NoSupport != nil:
		*r = SupportResult{Kind: NotSupported}
	default:
		return fmt.Errorf("unknown support result %s", data)
	}
	return nil
}

func (r SupportResult) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case Supported:
		return []byte(`{"Support":[]}`), nil
	case SupportedBy:
		contracts := r.Contracts
		if contracts == nil {
			contracts = []model.ContractAddress{}
		}
		return json.Marshal(map[string][][]model.ContractAddress{"SupportBy": {contracts}})
	default:
		return []byte(`{"NoSupport":[]}`), nil
	}
}

// Receiver is the destination of a transfer. A contract receiver is notified
// through Entrypoint.
type Receiver struct {
	Address    model.Address
	Entrypoint string
}

func AccountReceiver(a model.AccountAddress) Receiver {
	return Receiver{Address: model.AccountOf(a)}
}

func ContractReceiver(c model.ContractAddress, entrypoint string) Receiver {
	return Receiver{Address: model.ContractOf(c), Entrypoint: entrypoint}
}

func (r Receiver) MarshalJSON() ([]byte, error) {
	if r.Address.IsAccount() {
		return json.Marshal(map[string][]model.AccountAddress{"Account": {r.Address.Account}})
	}
	return json.Marshal(map[string][]interface{}{"Contract": {r.Address.Contract, r.Entrypoint}})
}

func (r *Receiver) UnmarshalJSON(data []byte) error {
	var tagged map[string][]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if fields, ok := tagged["Contract"]; ok {
		if len(fields) != 2 {
			return fmt.Errorf("contract receiver needs address and entrypoint")
		}
		var c model.ContractAddress
		if err := json.Unmarshal(fields[0], &c); err != nil {
			return err
		}
		var entrypoint string
		if err := json.Unmarshal(fields[1], &entrypoint); err != nil {
			return err
		}
		*r = ContractReceiver(c, entrypoint)
		return nil
	}
	var addr model.Address
	if err := json.Unmarshal(data, &addr); err != nil {
		return err
	}
	*r = Receiver{Address: addr}
	return nil
}

// Transfer is one transfer of the transfer command.
type Transfer[T model.TokenID, A model.TokenAmount] struct {
	TokenID T
	Amount  A
	From    model.Address
	To      Receiver
	Data    []byte
}

// CIS2 token amounts travel as decimal strings.
type amountString uint64

func (a amountString) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(a), 10))
}

func (a *amountString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*a = amountString(v)
	return nil
}

type transferParam[T model.TokenID] struct {
	TokenID T             `json:"token_id"`
	Amount  amountString  `json:"amount"`
	From    model.Address `json:"from"`
	To      Receiver      `json:"to"`
	Data    string        `json:"data"`
}

type operatorQuery struct {
	Owner   model.Address `json:"owner"`
	Address model.Address `json:"address"`
}

type balanceQuery[T model.TokenID] struct {
	TokenID T             `json:"token_id"`
	Address model.Address `json:"address"`
}

// OnReceivingParams is the parameter a token ledger passes to the receive
// hook of a contract receiver.
type OnReceivingParams[T model.TokenID] struct {
	TokenID T             `json:"token_id"`
	Amount  amountString  `json:"amount"`
	From    model.Address `json:"from"`
	Data    string        `json:"data"`
}

func NewOnReceivingParams[T model.TokenID, A model.TokenAmount](id T, amount A, from model.Address, data []byte) OnReceivingParams[T] {
	return OnReceivingParams[T]{TokenID: id, Amount: amountString(amount), From: from, Data: hexString(data)}
}

// TokenAmount reports the received amount.
func (p OnReceivingParams[T]) TokenAmount() uint64 { return uint64(p.Amount) }
