package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/paystack"
)

const testSecret = "sk_test_secret"

type fakeSettlementService struct {
	calls      int
	references []string
	applied    bool
	err        error
}

func (f *fakeSettlementService) ApplySettlement(_ context.Context, reference string, _ []byte) (bool, error) {
	f.calls++
	f.references = append(f.references, reference)
	return f.applied, f.err
}

type memoryGuard struct {
	seen map[string]bool
}

func (m *memoryGuard) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	key := consumer + ":" + eventID
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryGuard) Delete(_ context.Context, consumer, eventID string) error {
	delete(m.seen, consumer+":"+eventID)
	return nil
}

type staticSecret string

func (s staticSecret) SigningSecret() string { return string(s) }

func signedRequest(t *testing.T, event, reference string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"event": event,
		"data":  map[string]any{"reference": reference},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, paystack.Sign(testSecret, payload))
	return req
}

func TestPaystackWebhookAppliesSettlement(t *testing.T) {
	t.Parallel()

	service := &fakeSettlementService{applied: true}
	handler := PaystackWebhook(service, staticSecret(testSecret), &memoryGuard{}, nil, logger.NewNop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "charge.success", "mkp_abc"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, service.calls)
	assert.Equal(t, "mkp_abc", service.references[0])
}

func TestPaystackWebhookDuplicateDeliveryShortCircuits(t *testing.T) {
	t.Parallel()

	service := &fakeSettlementService{applied: true}
	guard := &memoryGuard{}
	handler := PaystackWebhook(service, staticSecret(testSecret), guard, nil, logger.NewNop())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, signedRequest(t, "charge.success", "mkp_dup"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signedRequest(t, "charge.success", "mkp_dup"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, service.calls)
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	service := &fakeSettlementService{}
	handler := PaystackWebhook(service, staticSecret(testSecret), &memoryGuard{}, nil, logger.NewNop())

	payload := []byte(`{"event":"charge.success","data":{"reference":"mkp_abc"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, service.calls)
}

func TestPaystackWebhookIgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	service := &fakeSettlementService{}
	handler := PaystackWebhook(service, staticSecret(testSecret), &memoryGuard{}, nil, logger.NewNop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "transfer.success", "mkp_xyz"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, service.calls)
}

func TestPaystackWebhookReleasesGuardOnError(t *testing.T) {
	t.Parallel()

	service := &fakeSettlementService{err: errors.New("db unavailable")}
	guard := &memoryGuard{}
	handler := PaystackWebhook(service, staticSecret(testSecret), guard, nil, logger.NewNop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "charge.success", "mkp_err"))
	require.NotEqual(t, http.StatusOK, rec.Code)

	// redelivery reaches the service again because the guard entry was dropped
	service.err = nil
	service.applied = true
	retry := httptest.NewRecorder()
	handler.ServeHTTP(retry, signedRequest(t, "charge.success", "mkp_err"))

	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, 2, service.calls)
}
