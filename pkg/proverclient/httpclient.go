package proverclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/lightprotocol/forester/pkg/config"
	"github.com/lightprotocol/forester/pkg/preparation"
)

// HTTPClient is the real prover adapter: net/http POSTs to
// prover_append_url / prover_update_url, GET polling of
// /queue-jobs/{job_id} (SPEC_FULL.md §4.5 NEW).
type HTTPClient struct {
	cfg        config.ProverConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewHTTPClient builds a prover client against cfg. httpClient may be
// nil to use http.DefaultClient.
func NewHTTPClient(cfg config.ProverConfig, httpClient *http.Client, logger *log.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[Prover] ", log.LstdFlags)
	}
	return &HTTPClient{cfg: cfg, httpClient: httpClient, logger: logger}
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type pollResponse struct {
	Status string `json:"status"` // "pending" | "done" | "failed"
	Error  string `json:"error"`
	Proof  *struct {
		A string `json:"a"`
		B string `json:"b"`
		C string `json:"c"`
	} `json:"proof"`
}

// circuitInputsJSON is what gets marshaled as the request body: the
// append or nullify inputs of a PreparedBatch, tagged by kind so the
// prover service can pick its decoder.
type circuitInputsJSON struct {
	Kind    string                       `json:"kind"`
	Append  *preparation.AppendInputs  `json:"append,omitempty"`
	Nullify *preparation.NullifyInputs `json:"nullify,omitempty"`
}

// SubmitAsync posts batch's circuit inputs to the endpoint matching kind
// and returns the prover's job id.
func (c *HTTPClient) SubmitAsync(ctx context.Context, kind Kind, batch preparation.PreparedBatch) (string, error) {
	url := c.cfg.AppendURL
	body := circuitInputsJSON{Kind: "append", Append: batch.Append}
	if kind == KindUpdate {
		url = c.cfg.UpdateURL
		body = circuitInputsJSON{Kind: "update", Nullify: batch.Nullify}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("proverclient: marshal inputs: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("proverclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &proofServiceTransientError{op: "submit", cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", &proofServiceTransientError{op: "submit", cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("proverclient: submit returned %d: %s", resp.StatusCode, data)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("proverclient: decode submit response: %w", err)
	}
	return out.JobID, nil
}

// PollCompletion polls jobID at the configured interval until it
// completes, fails, or max_wait_time elapses.
func (c *HTTPClient) PollCompletion(ctx context.Context, jobID string) (Proof, error) {
	deadline := time.Now().Add(c.cfg.MaxWaitTime)
	ticker := time.NewTicker(c.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		proof, done, err := c.pollOnce(ctx, jobID)
		if err != nil {
			return Proof{}, err
		}
		if done {
			return proof, nil
		}
		if time.Now().After(deadline) {
			return Proof{}, &proofServiceTransientError{op: "poll", cause: fmt.Errorf("job %s exceeded max_wait_time %s", jobID, c.cfg.MaxWaitTime)}
		}

		select {
		case <-ctx.Done():
			return Proof{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) pollOnce(ctx context.Context, jobID string) (Proof, bool, error) {
	url := fmt.Sprintf("%s/queue-jobs/%s", c.pollBaseURL(), jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Proof{}, false, fmt.Errorf("proverclient: build poll request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Proof{}, false, &proofServiceTransientError{op: "poll", cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Proof{}, false, &proofServiceTransientError{op: "poll", cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Proof{}, false, fmt.Errorf("proverclient: decode poll response: %w", err)
	}

	switch out.Status {
	case "done":
		proof, err := decodeProof(out.Proof.A, out.Proof.B, out.Proof.C)
		if err != nil {
			return Proof{}, false, fmt.Errorf("proverclient: decode proof: %w", err)
		}
		return proof, true, nil
	case "failed":
		return Proof{}, false, fmt.Errorf("%s", out.Error)
	default:
		return Proof{}, false, nil
	}
}

// pollBaseURL derives the polling host from the append endpoint, since
// job ids are not scoped to which endpoint submitted them.
func (c *HTTPClient) pollBaseURL() string {
	u, err := url.Parse(c.cfg.AppendURL)
	if err != nil || u.Host == "" {
		return c.cfg.AppendURL
	}
	return u.Scheme + "://" + u.Host
}

func decodeProof(a, b, cHex string) (Proof, error) {
	var proof Proof
	aBytes, err := hex.DecodeString(a)
	if err != nil || len(aBytes) != 64 {
		return Proof{}, fmt.Errorf("invalid a component")
	}
	bBytes, err := hex.DecodeString(b)
	if err != nil || len(bBytes) != 128 {
		return Proof{}, fmt.Errorf("invalid b component")
	}
	cBytes, err := hex.DecodeString(cHex)
	if err != nil || len(cBytes) != 64 {
		return Proof{}, fmt.Errorf("invalid c component")
	}
	copy(proof.A[:], aBytes)
	copy(proof.B[:], bBytes)
	copy(proof.C[:], cBytes)
	return proof, nil
}

// proofServiceTransientError marks a failure as a proof-service error
// for foresterrors.ClassifyProverError to wrap; it carries no
// constraint-violation text so it always classifies as a generic
// retryable proof-service failure.
type proofServiceTransientError struct {
	op    string
	cause error
}

func (e *proofServiceTransientError) Error() string {
	return fmt.Sprintf("proverclient: %s: %v", e.op, e.cause)
}

func (e *proofServiceTransientError) Unwrap() error { return e.cause }
