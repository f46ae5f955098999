package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

type JWTMaker struct {
	secretKey []byte
}

func NewJWTMaker(secretKey string) *JWTMaker {
	return &JWTMaker{secretKey: []byte(secretKey)}
}

func (maker *JWTMaker) sign(claims *UserClaims) (string, *UserClaims, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(maker.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("error signing token: %w", err)
	}
	return signed, claims, nil
}

func (maker *JWTMaker) CreateToken(id int64, address model.AccountAddress, duration time.Duration) (string, *UserClaims, error) {
	return maker.sign(NewUserClaims(id, address, duration))
}

func (maker *JWTMaker) CreateContractToken(contract model.ContractAddress, duration time.Duration) (string, *UserClaims, error) {
	return maker.sign(NewContractClaims(contract, duration))
}

func (maker *JWTMaker) VerifyToken(tokenStr string) (*UserClaims, error) {
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid token signing method")
		}
		return maker.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error parsing token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
