package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Joelisking/marketplace-api-sub000/pkg/config"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/sethvargo/go-retry"
)

// Gateway is the settlement-provider surface consumed by payment services.
type Gateway interface {
	CreateSplit(ctx context.Context, req CreateSplitRequest) (*Split, error)
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error)
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
}

// Client talks to the Paystack REST API.
type Client struct {
	cfg  config.PaystackConfig
	http *http.Client
	logg *logger.Logger
}

var _ Gateway = (*Client)(nil)

// New builds a gateway client from config.
func New(cfg config.PaystackConfig, logg *logger.Logger) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("paystack secret key is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
		logg: logg,
	}, nil
}

// CreateSplitRequest registers a percentage split across vendor subaccounts.
type CreateSplitRequest struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Currency    string            `json:"currency"`
	BearerType  string            `json:"bearer_type"`
	Subaccounts []SplitSubaccount `json:"subaccounts"`
}

type SplitSubaccount struct {
	Subaccount string `json:"subaccount"`
	Share      int64  `json:"share"`
}

type Split struct {
	ID        int64  `json:"id"`
	SplitCode string `json:"split_code"`
	Active    bool   `json:"active"`
}

// InitializeRequest starts a hosted checkout session.
type InitializeRequest struct {
	Email       string            `json:"email"`
	AmountMinor int64             `json:"amount"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency"`
	SplitCode   string            `json:"split_code,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the provider-side view of a charge.
type Transaction struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	Reference   string          `json:"reference"`
	AmountMinor int64           `json:"amount"`
	Currency    string          `json:"currency"`
	GatewayResp string          `json:"gateway_response"`
	PaidAt      string          `json:"paid_at"`
	Channel     string          `json:"channel"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Settled reports whether the provider considers the charge captured.
func (t *Transaction) Settled() bool {
	return t != nil && strings.EqualFold(t.Status, "success")
}

type RefundRequest struct {
	TransactionRef string `json:"transaction"`
	AmountMinor    int64  `json:"amount,omitempty"`
	MerchantNote   string `json:"merchant_note,omitempty"`
}

type Refund struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateSplit registers a split group with the provider.
func (c *Client) CreateSplit(ctx context.Context, req CreateSplitRequest) (*Split, error) {
	if req.Type == "" {
		req.Type = "percentage"
	}
	if req.BearerType == "" {
		req.BearerType = "account"
	}
	var out Split
	if err := c.do(ctx, http.MethodPost, "/split", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitializeTransaction opens a checkout session and returns the hosted payment URL.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	var out Authorization
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the provider-side status for a charge reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	var out Transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRefund asks the provider to reverse a settled charge.
func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if req.TransactionRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	var out Refund
	if err := c.do(ctx, http.MethodPost, "/refund", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one API call with exponential backoff on transient failures.
// Provider 5xx responses and transport errors are retried within the
// configured budget; 4xx responses fail immediately.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding gateway request")
		}
		payload = encoded
	}

	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxRetries), retry.NewExponential(c.cfg.RetryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.doOnce(ctx, method, path, payload, out)
	})
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "settlement gateway unreachable")
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.RetryableError(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		warnCtx := c.logg.WithFields(ctx, map[string]any{"status": resp.StatusCode, "path": path})
		c.logg.Warn(warnCtx, "gateway returned server error")
		return retry.RetryableError(pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "settlement gateway error"))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway response")
	}
	if resp.StatusCode >= http.StatusBadRequest || !envelope.Status {
		message := envelope.Message
		if message == "" {
			message = "gateway request rejected"
		}
		return pkgerrors.New(pkgerrors.CodeDependency, message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway payload")
		}
	}
	return nil
}
