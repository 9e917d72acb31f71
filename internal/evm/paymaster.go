package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// PaymasterConfig points at the hosted smart-account relay that
// sponsors gas in the transferred token. An empty BaseURL leaves the
// smart-account path disabled.
type PaymasterConfig struct {
	BaseURL        string        `split_words:"true"`
	AccountAddress string        `split_words:"true"`
	APIKey         string        `envconfig:"API_KEY"`
	Timeout        time.Duration `default:"15s"`
}

// paymasterClient drives the relay over REST. The relay owns the
// user-operation plumbing (bundler submission, paymaster signature) and
// settles fees from the account's token balance; this client only
// states the transfer intent and reads back the resulting hash.
type paymasterClient struct {
	baseURL string
	apiKey  string
	account ecommon.Address
	http    *http.Client
	logger  *logrus.Entry
}

func NewPaymasterClient(cfg PaymasterConfig, logger *logrus.Logger) (SmartAccountClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("paymaster base URL is required")
	}
	if !ecommon.IsHexAddress(cfg.AccountAddress) {
		return nil, fmt.Errorf("invalid smart account address: %s", cfg.AccountAddress)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &paymasterClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		account: ecommon.HexToAddress(cfg.AccountAddress),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.WithField("pkg", "evm"),
	}, nil
}

func (p *paymasterClient) Address() ecommon.Address {
	return p.account
}

type accountStatus struct {
	Deployed  bool `json:"deployed"`
	Sponsored bool `json:"sponsored"`
}

// Available reports whether the account is deployed and the relay is
// currently willing to sponsor operations for it.
func (p *paymasterClient) Available(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s", p.baseURL, p.account.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build account status request: %w", err)
	}
	p.authorize(req)

	res, err := p.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query paymaster: %w", err)
	}
	defer res.Body.Close()

	// An unknown account is simply not usable, not an error.
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return false, fmt.Errorf("paymaster returned %d: %s", res.StatusCode, body)
	}

	var status accountStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("failed to decode account status: %w", err)
	}
	return status.Deployed && status.Sponsored, nil
}

type transferRequest struct {
	Token    string `json:"token"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	FeeToken string `json:"feeToken"`
}

type transferResponse struct {
	TxHash     string `json:"txHash"`
	UserOpHash string `json:"userOpHash"`
}

// SendERC20WithTokenGas asks the relay to transfer amount base units of
// token, paying execution fees from the same token balance.
func (p *paymasterClient) SendERC20WithTokenGas(ctx context.Context, token, to ecommon.Address, amount *big.Int) (string, error) {
	payload, err := json.Marshal(transferRequest{
		Token:    token.Hex(),
		To:       to.Hex(),
		Amount:   amount.String(),
		FeeToken: token.Hex(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transfer request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transfers", p.baseURL, p.account.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	res, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit transfer to paymaster: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return "", fmt.Errorf("paymaster rejected transfer with %d: %s", res.StatusCode, body)
	}

	var parsed transferResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode transfer response: %w", err)
	}
	if parsed.TxHash != "" {
		return parsed.TxHash, nil
	}
	if parsed.UserOpHash == "" {
		return "", fmt.Errorf("paymaster returned no transaction reference")
	}

	p.logger.WithField("user_op", parsed.UserOpHash).Debug("relay returned user operation hash only")
	return parsed.UserOpHash, nil
}

func (p *paymasterClient) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
