// Package indexerclient is the reference indexer adapter (SPEC_FULL.md
// §6): net/http + encoding/json POST to get_queue_elements_v2. The
// PhotonStale contract ("initial_root must equal the current on-chain
// root") is enforced by the caller — the Coordinator — since only the
// caller knows what the current on-chain root is at request time; this
// client only transports the request and response.
package indexerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// Client is the consumed indexer interface.
type Client interface {
	GetQueueElementsV2(ctx context.Context, tree treetypes.TreeID, req Request) (Response, error)
}

// Request bounds how much of each queue to return, per the readiness
// counts the Coordinator computed in step 3.
type Request struct {
	OutputQueueLimit uint16 `json:"output_queue_limit"`
	InputQueueLimit  uint16 `json:"input_queue_limit"`
}

// Response is get_queue_elements_v2's full reply (SPEC_FULL.md §6).
type Response struct {
	InitialRoots     map[string]treetypes.Digest `json:"initial_roots"`
	Output           *preparation.OutputQueueData `json:"output"`
	Input            *preparation.InputQueueData  `json:"input"`
}

// HTTPClient is the real net/http-backed indexer adapter.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient builds an indexer client against baseURL. httpClient may
// be nil to use http.DefaultClient.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *HTTPClient) GetQueueElementsV2(ctx context.Context, tree treetypes.TreeID, req Request) (Response, error) {
	body := struct {
		Tree string `json:"tree"`
		Request
	}{Tree: tree.String(), Request: req}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("indexerclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get_queue_elements_v2", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("indexerclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("indexerclient: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("indexerclient: unexpected status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("indexerclient: decode response: %w", err)
	}
	return out, nil
}
