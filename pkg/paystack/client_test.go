package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Joelisking/marketplace-api-sub000/pkg/config"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(config.PaystackConfig{
		SecretKey:      "sk_test_abc",
		BaseURL:        server.URL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}, logger.NewNop())
	require.NoError(t, err)
	return client, server
}

func TestInitializeTransaction(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))

		var body InitializeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(3150), body.AmountMinor)

		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.example/abc",
				"access_code":       "abc",
				"reference":         body.Reference,
			},
		})
	}))

	auth, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:       "buyer@example.com",
		AmountMinor: 3150,
		Reference:   "ord_123",
		Currency:    "GHS",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/abc", auth.AuthorizationURL)
	assert.Equal(t, "ord_123", auth.Reference)
}

func TestCreateSplitDefaults(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body CreateSplitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "percentage", body.Type)
		assert.Equal(t, "account", body.BearerType)

		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]any{"id": 7, "split_code": "SPL_x1", "active": true},
		})
	}))

	split, err := client.CreateSplit(context.Background(), CreateSplitRequest{
		Name:     "order ord_123",
		Currency: "GHS",
		Subaccounts: []SplitSubaccount{
			{Subaccount: "ACCT_a", Share: 38},
			{Subaccount: "ACCT_b", Share: 25},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "SPL_x1", split.SplitCode)
}

func TestRejectedRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid amount"})
	}))

	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{Reference: "ord_bad"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsExhaustRetryBudget(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.VerifyTransaction(context.Background(), "ord_123")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayUnavailable))
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransactionSettled(t *testing.T) {
	assert.True(t, (&Transaction{Status: "success"}).Settled())
	assert.False(t, (&Transaction{Status: "failed"}).Settled())
	assert.False(t, (*Transaction)(nil).Settled())
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	sig := Sign("whsec_test", body)

	assert.True(t, VerifySignature("whsec_test", body, sig))
	assert.False(t, VerifySignature("whsec_other", body, sig))
	assert.False(t, VerifySignature("whsec_test", []byte(`{}`), sig))
	assert.False(t, VerifySignature("", body, sig))
}
