package middleware

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// UserClaims identify the sender of a request. Contract is set for tokens
// issued to a contract instance; such tokens carry no user id.
type UserClaims struct {
	UserID   int64                  `json:"user_id,omitempty"`
	Contract *model.ContractAddress `json:"contract,omitempty"`
	jwt.RegisteredClaims
}

func newClaims(subject string, duration time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ID:        tbTypes.ID().String(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
	}
}

func NewUserClaims(id int64, address model.AccountAddress, duration time.Duration) *UserClaims {
	return &UserClaims{
		UserID:           id,
		RegisteredClaims: newClaims(address.String(), duration),
	}
}

func NewContractClaims(contract model.ContractAddress, duration time.Duration) *UserClaims {
	return &UserClaims{
		Contract:         &contract,
		RegisteredClaims: newClaims(contract.String(), duration),
	}
}

// Sender returns the address the claims were issued to.
func (c *UserClaims) Sender() (model.Address, error) {
	if c.Contract != nil {
		return model.ContractOf(*c.Contract), nil
	}
	addr, err := model.ParseAccountAddress(c.Subject)
	if err != nil {
		return model.Address{}, err
	}
	return model.AccountOf(addr), nil
}
