package model

// ListingKey identifies a unique listing.
type ListingKey[T TokenID] struct {
	Token TokenIdentity[T] `json:"token"`
	Owner AccountAddress   `json:"owner"`
}

func NewListingKey[T TokenID](token TokenIdentity[T], owner AccountAddress) ListingKey[T] {
	return ListingKey[T]{Token: token, Owner: owner}
}

// Listing is an owner's offer: Quantity units at Price micro CCD each.
type Listing[A TokenAmount] struct {
	Quantity A      `json:"quantity"`
	Price    Amount `json:"price"`
}

// Decrease returns the listing with delta units removed. It does not guard
// against underflow.
func (l Listing[A]) Decrease(delta A) Listing[A] {
	l.Quantity -= delta
	return l
}

func (l Listing[A]) IsActive() bool {
	return l.Quantity > 0
}

// ListingItem is the flat record returned by listing queries.
type ListingItem[T TokenID, A TokenAmount] struct {
	TokenID  T               `json:"token_id"`
	Contract ContractAddress `json:"contract"`
	Price    Amount          `json:"price"`
	Owner    AccountAddress  `json:"owner"`
	Quantity A               `json:"quantity"`
}

func NewListingItem[T TokenID, A TokenAmount](key ListingKey[T], l Listing[A]) ListingItem[T, A] {
	return ListingItem[T, A]{
		TokenID:  key.Token.ID,
		Contract: key.Token.Contract,
		Price:    l.Price,
		Owner:    key.Owner,
		Quantity: l.Quantity,
	}
}

func (i ListingItem[T, A]) Key() ListingKey[T] {
	return ListingKey[T]{
		Token: TokenIdentity[T]{ID: i.TokenID, Contract: i.Contract},
		Owner: i.Owner,
	}
}
