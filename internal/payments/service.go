package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/internal/orders"
	"github.com/Joelisking/marketplace-api-sub000/pkg/config"
	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/metrics"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/payloads"
	"github.com/Joelisking/marketplace-api-sub000/pkg/paystack"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// payoutOpener opens vendor payout rows inside the settlement transaction.
type payoutOpener interface {
	OpenForSettlement(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, shares []VendorShare) (int, error)
}

// InitializeChargeInput carries what checkout needs to open a charge session.
type InitializeChargeInput struct {
	OrderID     uuid.UUID
	CustomerID  uuid.UUID
	Email       string
	CallbackURL string
}

// CheckoutSession is the hosted-payment handle returned to the customer.
type CheckoutSession struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	SplitCode        string `json:"split_code,omitempty"`
}

// Service drives charge initialization, settlement, and refunds.
type Service interface {
	InitializeCharge(ctx context.Context, input InitializeChargeInput) (*CheckoutSession, error)
	ApplySettlement(ctx context.Context, reference string, providerPayload []byte) (bool, error)
	VerifyCharge(ctx context.Context, reference string) (*models.Payment, error)
	Refund(ctx context.Context, reference, reason string) (*models.Payment, error)
	SplitForOrder(ctx context.Context, orderID uuid.UUID) (*Split, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo    PaymentRepository
	Orders  orders.OrderRepository
	Tx      txRunner
	Gateway paystack.Gateway
	Events  eventEmitter
	Payouts payoutOpener
	Pricing config.PricingConfig
	Logger  *logger.Logger
	Metrics *metrics.CheckoutMetrics
}

type service struct {
	repo    PaymentRepository
	orders  orders.OrderRepository
	tx      txRunner
	gateway paystack.Gateway
	events  eventEmitter
	payouts payoutOpener
	pricing config.PricingConfig
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
}

// NewService builds the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout opener required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		tx:      params.Tx,
		gateway: params.Gateway,
		events:  params.Events,
		payouts: params.Payouts,
		pricing: params.Pricing,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// SplitForOrder computes the vendor/platform division for an order without
// touching the provider. Used by the quote endpoint and by settlement.
func (s *service) SplitForOrder(ctx context.Context, orderID uuid.UUID) (*Split, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	contributions, err := s.repo.VendorContributions(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor contributions")
	}
	return CalculateSplit(order.TotalCents, contributions)
}

// InitializeCharge registers the order's split with the provider and opens a
// hosted checkout session. The pending payment row is written only after the
// provider accepts the initialization, keyed by the reference the provider
// returns, so a failed gateway call leaves no orphan row behind.
func (s *service) InitializeCharge(ctx context.Context, input InitializeChargeInput) (*CheckoutSession, error) {
	if input.OrderID == uuid.Nil || input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and customer id are required")
	}
	if input.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}

	order, err := s.orders.FindByIDForCustomer(ctx, input.OrderID, input.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.OrderPaymentStatusUnpaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
	}

	contributions, err := s.repo.VendorContributions(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor contributions")
	}
	split, err := CalculateSplit(order.TotalCents, contributions)
	if err != nil {
		return nil, err
	}

	subaccounts := make([]paystack.SplitSubaccount, 0, len(split.Vendors))
	for _, v := range split.Vendors {
		subaccounts = append(subaccounts, paystack.SplitSubaccount{
			Subaccount: v.SubaccountCode,
			Share:      v.SharePercent,
		})
	}
	group, err := s.gateway.CreateSplit(ctx, paystack.CreateSplitRequest{
		Name:        "order " + order.ID.String(),
		Currency:    order.Currency,
		Subaccounts: subaccounts,
	})
	if err != nil {
		s.metrics.IncGatewayCall("create_split", "error")
		return nil, err
	}
	s.metrics.IncGatewayCall("create_split", "ok")

	auth, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       input.Email,
		AmountMinor: order.TotalCents,
		Reference:   newReference(),
		Currency:    order.Currency,
		SplitCode:   group.SplitCode,
		CallbackURL: input.CallbackURL,
		Metadata:    map[string]string{"order_id": order.ID.String()},
	})
	if err != nil {
		s.metrics.IncGatewayCall("initialize", "error")
		return nil, err
	}
	s.metrics.IncGatewayCall("initialize", "ok")

	payment := &models.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Reference:   auth.Reference,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Provider:    "paystack",
		Status:      enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"reference": auth.Reference,
		"amount":    order.TotalCents,
	})
	s.logg.Info(logCtx, "charge session opened")

	return &CheckoutSession{
		Reference:        auth.Reference,
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		AmountCents:      order.TotalCents,
		Currency:         order.Currency,
		SplitCode:        group.SplitCode,
	}, nil
}

// ApplySettlement moves a payment to paid and the order into fulfillment,
// opening vendor payout rows in the same transaction. The payment-status
// compare-and-set makes redelivery of the same settlement a no-op: the first
// delivery wins, every later one returns applied=false with no side effects.
// A reference no local payment carries is acknowledged and ignored, never
// bounced back to the provider.
func (s *service) ApplySettlement(ctx context.Context, reference string, providerPayload []byte) (bool, error) {
	if reference == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	var (
		applied       bool
		unknown       bool
		heldForRefund bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.TransitionStatus(ctx, reference, enums.PaymentStatusPending, enums.PaymentStatusPaid, providerPayload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment")
		}
		if !moved {
			if _, err := repo.FindByReference(ctx, reference); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					unknown = true
					return nil
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
			}
			// already settled or refunded: redelivery, nothing to do
			return nil
		}

		payment, err := repo.FindByReference(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}

		order, err := s.orders.WithTx(tx).FindByID(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		settled, err := s.orders.WithTx(tx).MarkSettled(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle order")
		}
		if !settled {
			// the order was cancelled while the charge was in flight: keep
			// the captured money recorded on the payment, skip payouts, and
			// leave the funds for the refund path
			if order.Status == enums.OrderStatusCancelled {
				if _, err := s.orders.WithTx(tx).RecordLatePayment(ctx, payment.OrderID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record late payment")
				}
				heldForRefund = true
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting settlement")
		}

		contributions, err := repo.VendorContributions(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor contributions")
		}
		split, err := CalculateSplit(payment.AmountCents, contributions)
		if err != nil {
			return err
		}

		opened, err := s.payouts.OpenForSettlement(ctx, tx, payment.OrderID, split.Vendors)
		if err != nil {
			return err
		}
		s.metrics.IncPayoutsOpened(opened)

		cuts := make([]payloads.VendorShareSlip, 0, len(split.Vendors))
		for _, v := range split.Vendors {
			cuts = append(cuts, payloads.VendorShareSlip{
				VendorID:       v.VendorID.String(),
				SubaccountCode: v.SubaccountCode,
				SharePercent:   v.SharePercent,
				AmountCents:    v.AmountCents,
			})
		}
		if err := s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentSettledEvent{
				PaymentID:   payment.ID.String(),
				OrderID:     payment.OrderID.String(),
				CustomerID:  order.CustomerID.String(),
				Reference:   reference,
				Currency:    payment.Currency,
				AmountCents: payment.AmountCents,
				SettledAt:   time.Now(),
				VendorCuts:  cuts,
			},
		}); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"reference": reference})
	switch {
	case unknown:
		s.logg.Warn(logCtx, "settlement ignored for unknown reference")
		return false, nil
	case heldForRefund:
		s.logg.Warn(logCtx, "settlement arrived after cancellation, payment held for refund")
		return true, nil
	case applied:
		s.logg.Info(logCtx, "payment settled")
	}
	return applied, nil
}

// VerifyCharge asks the provider for the charge status and applies the
// settlement if the charge succeeded but the webhook has not landed yet.
func (s *service) VerifyCharge(ctx context.Context, reference string) (*models.Payment, error) {
	payment, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status != enums.PaymentStatusPending {
		return payment, nil
	}

	trans, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		s.metrics.IncGatewayCall("verify", "error")
		return nil, err
	}
	s.metrics.IncGatewayCall("verify", "ok")

	if trans.Settled() {
		if _, err := s.ApplySettlement(ctx, reference, nil); err != nil {
			return nil, err
		}
	}
	return s.repo.FindByReference(ctx, reference)
}

// Refund reverses a settled charge. The provider call happens first: a refund
// the provider rejects must not flip local state.
func (s *service) Refund(ctx context.Context, reference, reason string) (*models.Payment, error) {
	payment, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only settled payments can be refunded")
	}

	if _, err := s.gateway.CreateRefund(ctx, paystack.RefundRequest{
		TransactionRef: reference,
		AmountMinor:    payment.AmountCents,
		MerchantNote:   reason,
	}); err != nil {
		s.metrics.IncGatewayCall("refund", "error")
		return nil, err
	}
	s.metrics.IncGatewayCall("refund", "ok")

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.TransitionStatus(ctx, reference, enums.PaymentStatusPaid, enums.PaymentStatusRefunded, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment changed concurrently")
		}

		refunded, err := s.orders.WithTx(tx).MarkRefunded(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund order")
		}
		if !refunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not refundable")
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentRefundedEvent{
				PaymentID:   payment.ID.String(),
				OrderID:     payment.OrderID.String(),
				Reference:   reference,
				AmountCents: payment.AmountCents,
				RefundedAt:  time.Now(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"reference": reference})
	s.logg.Info(logCtx, "payment refunded")
	return s.repo.FindByReference(ctx, reference)
}

func newReference() string {
	return "mkp_" + uuid.NewString()
}
