package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Joelisking/marketplace-api-sub000/api/responses"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/metrics"
	"github.com/Joelisking/marketplace-api-sub000/pkg/paystack"
)

const (
	settlementConsumer = "paystack-webhook"
	maxWebhookBody     = 1 << 20

	eventChargeSuccess = "charge.success"
)

type SettlementService interface {
	ApplySettlement(ctx context.Context, reference string, providerPayload []byte) (bool, error)
}

type webhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// PaystackWebhook verifies and applies provider settlement events. Events the
// pipeline does not act on are acknowledged so the provider stops resending
// them; only an invalid signature is rejected.
func PaystackWebhook(svc SettlementService, secrets signingSecretSource, guard webhookGuard, m *metrics.CheckoutMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || secrets == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(paystack.SignatureHeader)
		if !paystack.VerifySignature(secrets.SigningSecret(), payload, signature) {
			m.IncWebhook("unknown", "bad_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var envelope webhookEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload"))
			return
		}

		if envelope.Event != eventChargeSuccess {
			m.IncWebhook(envelope.Event, "ignored")
			responses.WriteSuccess(w, nil)
			return
		}
		if envelope.Data.Reference == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing reference"))
			return
		}

		eventID := envelope.Event + ":" + envelope.Data.Reference
		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, settlementConsumer, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			m.IncWebhook(envelope.Event, "duplicate")
			responses.WriteSuccess(w, nil)
			return
		}

		applied, err := svc.ApplySettlement(ctx, envelope.Data.Reference, payload)
		if err != nil {
			_ = guard.Delete(ctx, settlementConsumer, eventID)
			m.IncWebhook(envelope.Event, "error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome := "applied"
		if !applied {
			outcome = "noop"
		}
		m.IncWebhook(envelope.Event, outcome)
		if logg != nil {
			logCtx := logg.WithReference(ctx, envelope.Data.Reference)
			logg.Info(logCtx, "settlement webhook processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
