package model

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	accountAddressSize    = 32
	accountAddressVersion = 1
)

// AccountAddress identifies an end-user account on the chain.
type AccountAddress [accountAddressSize]byte

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}

// ParseAccountAddress decodes the base58check form of an account address.
func ParseAccountAddress(s string) (AccountAddress, error) {
	var addr AccountAddress
	raw, err := base58.Decode(s)
	if err != nil {
		return addr, fmt.Errorf("invalid account address %q: %w", s, err)
	}
	if len(raw) != 1+accountAddressSize+4 {
		return addr, fmt.Errorf("invalid account address %q: unexpected length %d", s, len(raw))
	}
	if raw[0] != accountAddressVersion {
		return addr, fmt.Errorf("invalid account address %q: unknown version %d", s, raw[0])
	}
	body, sum := raw[:1+accountAddressSize], raw[1+accountAddressSize:]
	if string(checksum(body)) != string(sum) {
		return addr, fmt.Errorf("invalid account address %q: checksum mismatch", s)
	}
	copy(addr[:], body[1:])
	return addr, nil
}

func (a AccountAddress) String() string {
	payload := make([]byte, 0, 1+accountAddressSize+4)
	payload = append(payload, accountAddressVersion)
	payload = append(payload, a[:]...)
	payload = append(payload, checksum(payload)...)
	return base58.Encode(payload)
}

func (a AccountAddress) IsZero() bool {
	return a == AccountAddress{}
}

func (a AccountAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ContractAddress identifies a smart contract instance.
type ContractAddress struct {
	Index    uint64 `json:"index"`
	Subindex uint64 `json:"subindex"`
}

func (c ContractAddress) String() string {
	return fmt.Sprintf("<%d,%d>", c.Index, c.Subindex)
}

type AddressKind uint8

const (
	AddressAccount AddressKind = iota
	AddressContract
)

// Address is either an account or a contract.
type Address struct {
	Kind     AddressKind
	Account  AccountAddress
	Contract ContractAddress
}

func AccountOf(a AccountAddress) Address {
	return Address{Kind: AddressAccount, Account: a}
}

func ContractOf(c ContractAddress) Address {
	return Address{Kind: AddressContract, Contract: c}
}

func (a Address) IsAccount() bool {
	return a.Kind == AddressAccount
}

func (a Address) String() string {
	if a.Kind == AddressContract {
		return a.Contract.String()
	}
	return a.Account.String()
}

// MarshalJSON uses the tagged form {"Account":[addr]} / {"Contract":[{...}]}.
func (a Address) MarshalJSON() ([]byte, error) {
	if a.Kind == AddressContract {
		return json.Marshal(map[string][]ContractAddress{"Contract": {a.Contract}})
	}
	return json.Marshal(map[string][]AccountAddress{"Account": {a.Account}})
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var tagged map[string][]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return errors.New("address must have exactly one variant")
	}
	for tag, fields := range tagged {
		if len(fields) != 1 {
			return fmt.Errorf("address variant %s must have exactly one field", tag)
		}
		switch tag {
		case "Account":
			var acc AccountAddress
			if err := json.Unmarshal(fields[0], &acc); err != nil {
				return err
			}
			*a = AccountOf(acc)
		case "Contract":
			var c ContractAddress
			if err := json.Unmarshal(fields[0], &c); err != nil {
				return err
			}
			*a = ContractOf(c)
		default:
			return fmt.Errorf("unknown address variant %s", tag)
		}
	}
	return nil
}
