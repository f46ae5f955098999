package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/josidbobo/IDConcordiumDEX/internal/exchange"
	"github.com/josidbobo/IDConcordiumDEX/internal/router/middleware"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// Market is the exchange instance the market routes invoke.
type Market[T model.TokenID, A model.TokenAmount] interface {
	Add(ctx context.Context, sender model.Address, p exchange.AddParams[T, A]) error
	Transfer(ctx context.Context, sender model.Address, amount model.Amount, p exchange.TransferParams[T, A]) error
	TransferCIS2(ctx context.Context, sender model.Address, p exchange.TransferParams[T, A]) (uuid.UUID, error)
	SettlePayout(ctx context.Context, sender model.Address, id uuid.UUID) error
	OnReceivingCIS2(ctx context.Context, sender model.Address, param []byte) error
	List(ctx context.Context) ([]model.ListingItem[T, A], error)
	View(ctx context.Context) (exchange.View, error)
	Depth(ctx context.Context, token model.TokenIdentity[T], levels int) (*model.MarketDepth, error)
}

type MarketRouter interface {
	Add(w http.ResponseWriter, r *http.Request)
	Transfer(w http.ResponseWriter, r *http.Request)
	TransferCIS2(w http.ResponseWriter, r *http.Request)
	Settle(w http.ResponseWriter, r *http.Request)
	OnReceive(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	View(w http.ResponseWriter, r *http.Request)
	Depth(w http.ResponseWriter, r *http.Request)
}

type marketRouterImpl[T model.TokenID, A model.TokenAmount] struct {
	market Market[T, A]
}

func NewMarketRouter[T model.TokenID, A model.TokenAmount](market Market[T, A]) MarketRouter {
	return &marketRouterImpl[T, A]{market: market}
}

type acceptedResponse struct {
	Status string `json:"status"`
	Intent string `json:"intent,omitempty"`
}

var accepted = acceptedResponse{Status: "accepted"}

// sender is the address the authenticated request acts for.
func sender(w http.ResponseWriter, r *http.Request) (model.Address, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("missing claims"))
		return model.Address{}, false
	}
	addr, err := claims.Sender()
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err)
		return model.Address{}, false
	}
	return addr, true
}

func (mr *marketRouterImpl[T, A]) Add(w http.ResponseWriter, r *http.Request) {
	from, ok := sender(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[exchange.AddParams[T, A]](w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := mr.market.Add(r.Context(), from, req); err != nil {
		writeReject(w, err, uuid.Nil)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

type transferRequest[T model.TokenID, A model.TokenAmount] struct {
	exchange.TransferParams[T, A]
	// Attached micro-CCD.
	Amount model.Amount `json:"amount"`
}

func (mr *marketRouterImpl[T, A]) Transfer(w http.ResponseWriter, r *http.Request) {
	from, ok := sender(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[transferRequest[T, A]](w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := mr.market.Transfer(r.Context(), from, req.Amount, req.TransferParams); err != nil {
		writeReject(w, err, uuid.Nil)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

func (mr *marketRouterImpl[T, A]) TransferCIS2(w http.ResponseWriter, r *http.Request) {
	from, ok := sender(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[exchange.TransferParams[T, A]](w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	id, err := mr.market.TransferCIS2(r.Context(), from, req)
	if err != nil {
		if !errors.Is(err, exchange.ErrCurrencyTransferFailed) {
			id = uuid.Nil
		}
		writeReject(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, acceptedResponse{Status: "accepted", Intent: id.String()})
}

func (mr *marketRouterImpl[T, A]) Settle(w http.ResponseWriter, r *http.Request) {
	type SettleRequest struct {
		Intent uuid.UUID `json:"intent"`
	}
	from, ok := sender(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[SettleRequest](w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := mr.market.SettlePayout(r.Context(), from, req.Intent); err != nil {
		writeReject(w, err, req.Intent)
		return
	}
	writeJSON(w, http.StatusOK, acceptedResponse{Status: "accepted", Intent: req.Intent.String()})
}

// OnReceive relays a receipt from a token ledger. The token must be issued to
// the ledger contract.
func (mr *marketRouterImpl[T, A]) OnReceive(w http.ResponseWriter, r *http.Request) {
	from, ok := sender(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := mr.market.OnReceivingCIS2(r.Context(), from, body); err != nil {
		writeReject(w, err, uuid.Nil)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

func (mr *marketRouterImpl[T, A]) List(w http.ResponseWriter, r *http.Request) {
	items, err := mr.market.List(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (mr *marketRouterImpl[T, A]) View(w http.ResponseWriter, r *http.Request) {
	view, err := mr.market.View(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Depth serves GET /api/v1/market/depth?contract=3&subindex=0&token=01&levels=20.
func (mr *marketRouterImpl[T, A]) Depth(w http.ResponseWriter, r *http.Request) {
	token, levels, err := depthQuery[T](r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	depth, err := mr.market.Depth(r.Context(), token, levels)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, depth)
}

func depthQuery[T model.TokenID](r *http.Request) (model.TokenIdentity[T], int, error) {
	var token model.TokenIdentity[T]
	q := r.URL.Query()

	index, err := strconv.ParseUint(q.Get("contract"), 10, 64)
	if err != nil {
		return token, 0, fmt.Errorf("contract: %w", err)
	}
	var subindex uint64
	if s := q.Get("subindex"); s != "" {
		if subindex, err = strconv.ParseUint(s, 10, 64); err != nil {
			return token, 0, fmt.Errorf("subindex: %w", err)
		}
	}
	id, err := model.ParseTokenID[T](q.Get("token"))
	if err != nil {
		return token, 0, err
	}
	levels := 0
	if s := q.Get("levels"); s != "" {
		if levels, err = strconv.Atoi(s); err != nil {
			return token, 0, fmt.Errorf("levels: %w", err)
		}
	}
	token = model.TokenIdentity[T]{ID: id, Contract: model.ContractAddress{Index: index, Subindex: subindex}}
	return token, levels, nil
}
