package exchange

import (
	"fmt"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// InitParams sizes the listing store of a new instance.
type InitParams struct {
	Amount uint16 `json:"amount"`
}

type AddParams[T model.TokenID, A model.TokenAmount] struct {
	CISContractAddress model.ContractAddress `json:"cis_contract_address"`
	TokenID            T                     `json:"token_id"`
	// Price per unit in micro-CCD.
	Price    model.Amount `json:"price"`
	Quantity A            `json:"quantity"`
}

func (p AddParams[T, A]) Token() model.TokenIdentity[T] {
	return model.TokenIdentity[T]{ID: p.TokenID, Contract: p.CISContractAddress}
}

func (p AddParams[T, A]) Validate() error {
	if p.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrParameterDecode)
	}
	return nil
}

// TransferParams is the parameter of transfer and transfer_cis2.
type TransferParams[T model.TokenID, A model.TokenAmount] struct {
	CISContractAddress model.ContractAddress `json:"cis_contract_address"`
	TokenID            T                     `json:"token_id"`
	To                 model.AccountAddress  `json:"to"`
	Owner              model.AccountAddress  `json:"owner"`
	Quantity           A                     `json:"quantity"`
}

func (p TransferParams[T, A]) Token() model.TokenIdentity[T] {
	return model.TokenIdentity[T]{ID: p.TokenID, Contract: p.CISContractAddress}
}

func (p TransferParams[T, A]) Key() model.ListingKey[T] {
	return model.NewListingKey(p.Token(), p.Owner)
}

func (p TransferParams[T, A]) Validate() error {
	if p.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrParameterDecode)
	}
	if p.Owner.IsZero() {
		return fmt.Errorf("%w: owner is required", ErrParameterDecode)
	}
	return nil
}
