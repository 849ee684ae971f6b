package notifications

import (
	"context"
	"fmt"

	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/payloads"
)

// Service fans domain events out to the parties that care about them.
// Delivery channels live outside this codebase; every hook here records a
// structured entry that downstream delivery infrastructure tails.
type Service interface {
	OrderCreated(ctx context.Context, event *payloads.OrderCreatedEvent) error
	OrderCancelled(ctx context.Context, event *payloads.OrderCancelledEvent) error
	PaymentSettled(ctx context.Context, event *payloads.PaymentSettledEvent) error
	PaymentRefunded(ctx context.Context, event *payloads.PaymentRefundedEvent) error
}

type service struct {
	logg *logger.Logger
}

// NewService builds the notification dispatcher.
func NewService(logg *logger.Logger) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{logg: logg}, nil
}

func (s *service) OrderCreated(ctx context.Context, event *payloads.OrderCreatedEvent) error {
	if event == nil {
		return fmt.Errorf("order created payload required")
	}
	vendors := make(map[string]struct{}, len(event.Items))
	for _, item := range event.Items {
		vendors[item.VendorID] = struct{}{}
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     event.OrderID,
		"customer_id":  event.CustomerID,
		"total_cents":  event.TotalCents,
		"vendor_count": len(vendors),
	})
	s.logg.Info(logCtx, "notify vendors of new order")
	return nil
}

func (s *service) OrderCancelled(ctx context.Context, event *payloads.OrderCancelledEvent) error {
	if event == nil {
		return fmt.Errorf("order cancelled payload required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":    event.OrderID,
		"customer_id": event.CustomerID,
		"reason":      event.Reason,
	})
	s.logg.Info(logCtx, "notify vendors of cancelled order")
	return nil
}

func (s *service) PaymentSettled(ctx context.Context, event *payloads.PaymentSettledEvent) error {
	if event == nil {
		return fmt.Errorf("payment settled payload required")
	}
	for _, cut := range event.VendorCuts {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     event.OrderID,
			"payment_id":   event.PaymentID,
			"vendor_id":    cut.VendorID,
			"amount_cents": cut.AmountCents,
		})
		s.logg.Info(logCtx, "notify vendor of settled payment")
	}
	return nil
}

func (s *service) PaymentRefunded(ctx context.Context, event *payloads.PaymentRefundedEvent) error {
	if event == nil {
		return fmt.Errorf("payment refunded payload required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     event.OrderID,
		"payment_id":   event.PaymentID,
		"amount_cents": event.AmountCents,
	})
	s.logg.Info(logCtx, "notify customer of refund")
	return nil
}
