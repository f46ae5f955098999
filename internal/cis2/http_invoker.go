package cis2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// HTTPInvoker invokes ledger contracts through a node gateway exposing
// POST {base}/v1/contracts/{index}/{subindex}/invoke/{entrypoint}.
type HTTPInvoker struct {
	baseURL string
	caller  model.Address
	client  *http.Client
}

type invokeRequest struct {
	Invoker   model.Address   `json:"invoker"`
	Parameter json.RawMessage `json:"parameter"`
	Amount    string          `json:"amount"`
}

type invokeResponse struct {
	ReturnValue json.RawMessage `json:"return_value"`
	Error       string          `json:"error,omitempty"`
}

var _ Invoker = (*HTTPInvoker)(nil)

// NewHTTPInvoker returns an invoker issuing every call on behalf of caller.
// A nil client uses http.DefaultClient.
func NewHTTPInvoker(baseURL string, caller model.Address, client *http.Client) *HTTPInvoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPInvoker{baseURL: strings.TrimRight(baseURL, "/"), caller: caller, client: client}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, contract model.ContractAddress, entrypoint string, param []byte, amount model.Amount) ([]byte, error) {
	body, err := json.Marshal(invokeRequest{
		Invoker:   h.caller,
		Parameter: param,
		Amount:    strconv.FormatUint(uint64(amount), 10),
	})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1/contracts/%d/%d/invoke/%s", h.baseURL, contract.Index, contract.Subindex, entrypoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out invokeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return nil, fmt.Errorf("contract %s rejected %s: status %d: %s", contract, entrypoint, resp.StatusCode, out.Error)
	}
	return out.ReturnValue, nil
}
