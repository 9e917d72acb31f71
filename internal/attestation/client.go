// Package attestation talks to the bridge's off-chain attestation
// service. The service certifies burn events; the bridge cannot mint
// until it reports a complete attestation for the burn transaction.
package attestation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// StatusComplete is the service's terminal success status; anything
// else means the attestation is still being produced.
const StatusComplete = "complete"

// ErrNotReady means the service knows nothing for the transaction yet
// or the attestation is still pending.
var ErrNotReady = errors.New("attestation not ready")

// Message is one attested burn message: the raw message bytes and the
// attestor signature, both hex-encoded, exactly as the destination
// chain's receiving contract expects them.
type Message struct {
	Message     string `json:"message"`
	Attestation string `json:"attestation"`
	Status      string `json:"status"`
	EventNonce  string `json:"eventNonce,omitempty"`
}

type response struct {
	Messages []Message `json:"messages"`
}

// Config points at one attestation service deployment.
type Config struct {
	BaseURL string        `split_words:"true" required:"true"`
	Timeout time.Duration `default:"15s"`
}

// Client fetches attestations by source-chain transaction identifier.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Fetch returns the attested message for a burn transaction on the
// given source domain. ErrNotReady is the normal in-progress answer and
// callers are expected to poll.
func (c *Client) Fetch(ctx context.Context, sourceDomain uint32, txRef string) (Message, error) {
	endpoint := fmt.Sprintf(
		"%s/v2/messages/%d?transactionHash=%s",
		c.baseURL,
		sourceDomain,
		url.QueryEscape(txRef),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Message{}, fmt.Errorf("failed to build attestation request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("failed to query attestation service: %w", err)
	}
	defer res.Body.Close()

	// The service answers 404 until it has indexed the burn.
	if res.StatusCode == http.StatusNotFound {
		return Message{}, ErrNotReady
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return Message{}, fmt.Errorf("attestation service returned %d: %s", res.StatusCode, body)
	}

	var parsed response
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Message{}, fmt.Errorf("failed to decode attestation response: %w", err)
	}

	if len(parsed.Messages) == 0 {
		return Message{}, ErrNotReady
	}

	msg := parsed.Messages[0]
	if msg.Status != StatusComplete || msg.Attestation == "" || msg.Message == "" {
		return Message{}, ErrNotReady
	}
	return msg, nil
}
