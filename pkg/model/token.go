package model

import (
	"encoding"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// TokenID is a CIS-2 token identifier. String returns the hex encoding of
// its little-endian bytes.
type TokenID interface {
	comparable
	fmt.Stringer
}

// TokenAmount is the numeric width a token contract uses for balances.
type TokenAmount interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

type (
	TokenIDUnit struct{}
	TokenIDU8   uint8
	TokenIDU32  uint32
	TokenIDU64  uint64
)

func (TokenIDUnit) String() string  { return "" }
func (id TokenIDU8) String() string { return hex.EncodeToString([]byte{byte(id)}) }

func (id TokenIDU32) String() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(id))
	return hex.EncodeToString(b[:])
}

func (id TokenIDU64) String() string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return hex.EncodeToString(b[:])
}

func decodeFixed(text []byte, size int) ([]byte, error) {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return nil, fmt.Errorf("invalid token id %q: %w", text, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("invalid token id %q: want %d bytes, got %d", text, size, len(b))
	}
	return b, nil
}

func (id TokenIDUnit) MarshalText() ([]byte, error) { return []byte{}, nil }

func (id *TokenIDUnit) UnmarshalText(text []byte) error {
	_, err := decodeFixed(text, 0)
	return err
}

func (id TokenIDU8) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TokenIDU8) UnmarshalText(text []byte) error {
	b, err := decodeFixed(text, 1)
	if err != nil {
		return err
	}
	*id = TokenIDU8(b[0])
	return nil
}

func (id TokenIDU32) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TokenIDU32) UnmarshalText(text []byte) error {
	b, err := decodeFixed(text, 4)
	if err != nil {
		return err
	}
	*id = TokenIDU32(binary.LittleEndian.Uint32(b))
	return nil
}

func (id TokenIDU64) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TokenIDU64) UnmarshalText(text []byte) error {
	b, err := decodeFixed(text, 8)
	if err != nil {
		return err
	}
	*id = TokenIDU64(binary.LittleEndian.Uint64(b))
	return nil
}

// ParseTokenID decodes the hex form produced by String.
func ParseTokenID[T TokenID](s string) (T, error) {
	var id T
	u, ok := any(&id).(encoding.TextUnmarshaler)
	if !ok {
		return id, fmt.Errorf("token id type %T cannot be parsed", id)
	}
	if err := u.UnmarshalText([]byte(s)); err != nil {
		return id, err
	}
	return id, nil
}

// TokenIdentity names one token type on one token contract.
type TokenIdentity[T TokenID] struct {
	ID       T               `json:"token_id"`
	Contract ContractAddress `json:"contract"`
}

func (t TokenIdentity[T]) String() string {
	return fmt.Sprintf("%s/%s", t.Contract, t.ID)
}
