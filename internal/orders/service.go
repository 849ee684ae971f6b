package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/internal/cart"
	"github.com/Joelisking/marketplace-api-sub000/internal/inventory"
	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/metrics"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/payloads"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartPort interface {
	ValidateForCheckout(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) (*cart.Summary, error)
	QuoteLines(lines []cart.SummaryLine) *cart.Summary
	RemoveLines(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, productIDs []uuid.UUID) error
}

type stockPort interface {
	Reserve(ctx context.Context, tx *gorm.DB, reference uuid.UUID, items []inventory.Reservation) error
	Release(ctx context.Context, tx *gorm.DB, reference uuid.UUID, items []inventory.Reservation, reason string) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateOrderInput carries the checkout payload beyond identity.
type CreateOrderInput struct {
	ShippingAddress json.RawMessage
	BillingAddress  json.RawMessage
}

// Service owns the order lifecycle from checkout to terminal state.
type Service interface {
	CreateOrder(ctx context.Context, customerID, storeID uuid.UUID, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, customerID *uuid.UUID, reason string) (*models.Order, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo    OrderRepository
	Tx      txRunner
	Cart    cartPort
	Stock   stockPort
	Events  eventEmitter
	Logger  *logger.Logger
	Metrics *metrics.CheckoutMetrics
}

type service struct {
	repo    OrderRepository
	tx      txRunner
	cart    cartPort
	stock   stockPort
	events  eventEmitter
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart port required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock port required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		cart:    params.Cart,
		stock:   params.Stock,
		events:  params.Events,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// CreateOrder turns the customer's cart lines for one store into a pending
// order. Validation, order insert, stock reservation, and cart cleanup all
// ride the same transaction: a failed reservation rolls everything back.
func (s *service) CreateOrder(ctx context.Context, customerID, storeID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}

	started := time.Now()
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		summary, err := s.cart.ValidateForCheckout(ctx, tx, customerID)
		if err != nil {
			return err
		}

		storeLines := make([]cart.SummaryLine, 0, len(summary.Items))
		for _, line := range summary.Items {
			if line.StoreID == storeID {
				storeLines = append(storeLines, line)
			}
		}
		if len(storeLines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart has no items for this store")
		}

		quote := s.cart.QuoteLines(storeLines)

		items := make([]models.OrderItem, 0, len(storeLines))
		reservations := make([]inventory.Reservation, 0, len(storeLines))
		productIDs := make([]uuid.UUID, 0, len(storeLines))
		for _, line := range storeLines {
			items = append(items, models.OrderItem{
				ProductID:      line.ProductID,
				Qty:            line.Qty,
				UnitPriceCents: line.UnitPriceCents,
				LineTotalCents: line.LineTotalCents,
			})
			reservations = append(reservations, inventory.Reservation{ProductID: line.ProductID, Qty: line.Qty})
			productIDs = append(productIDs, line.ProductID)
		}

		order = &models.Order{
			ID:              uuid.New(),
			CustomerID:      customerID,
			StoreID:         storeID,
			Status:          enums.OrderStatusPending,
			PaymentStatus:   enums.OrderPaymentStatusUnpaid,
			Currency:        quote.Currency,
			SubtotalCents:   quote.SubtotalCents,
			TaxCents:        quote.TaxCents,
			ShippingCents:   quote.ShippingCents,
			TotalCents:      quote.TotalCents,
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  input.BillingAddress,
			Items:           items,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if err := s.stock.Reserve(ctx, tx, order.ID, reservations); err != nil {
			return err
		}

		if err := s.cart.RemoveLines(ctx, tx, customerID, productIDs); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{CustomerID: customerID, Role: string(enums.RoleCustomer)},
			Data:          orderCreatedPayload(order),
		})
	})
	if err != nil {
		s.metrics.ObserveCheckout("failed", time.Since(started))
		return nil, err
	}

	s.metrics.ObserveCheckout("created", time.Since(started))
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "order created")
	return order, nil
}

// GetOrder loads one order scoped to its owner.
func (s *service) GetOrder(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByIDForCustomer(ctx, orderID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// ListOrders pages through the customer's order history.
func (s *service) ListOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	rows, err := s.repo.ListForCustomer(ctx, customerID, cursor, params.Limit)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Page(rows, params.Limit, func(row models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

// UpdateStatus applies a fulfillment move (processing -> shipped ->
// delivered). Cancellation and refund have their own paths.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*models.Order, error) {
	if to == enums.OrderStatusCancelled || to == enums.OrderStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("status %s requires its dedicated operation", to))
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := guardTransition(order.Status, to); err != nil {
		return nil, err
	}

	moved, err := s.repo.TransitionStatus(ctx, orderID, order.Status, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition order")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
	}
	return s.repo.FindByID(ctx, orderID)
}

// Cancel takes the order out of fulfillment and returns reserved stock when
// the order is still unpaid and unshipped. Paid orders keep their stock out
// and go through the refund path; cancellation alone never moves money.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, customerID *uuid.UUID, reason string) (*models.Order, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if customerID != nil && order.CustomerID != *customerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err := guardTransition(order.Status, enums.OrderStatusCancelled); err != nil {
			return err
		}

		moved, err := repo.MarkCancelled(ctx, orderID, order.Status, order.PaymentStatus, reason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		// stock comes back only while the goods are unpaid and still in the
		// building: paid inventory belongs to the refund path, shipped goods
		// to the returns process
		releasable := order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusProcessing
		if releasable && order.PaymentStatus == enums.OrderPaymentStatusUnpaid {
			reservations := make([]inventory.Reservation, 0, len(order.Items))
			for _, item := range order.Items {
				reservations = append(reservations, inventory.Reservation{ProductID: item.ProductID, Qty: item.Qty})
			}
			if err := s.stock.Release(ctx, tx, order.ID, reservations, "order cancelled"); err != nil {
				return err
			}
		}

		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID.String(),
				CustomerID:  order.CustomerID.String(),
				Reason:      reason,
				CancelledAt: time.Now(),
			},
		}); err != nil {
			return err
		}

		cancelled, err = repo.FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(logCtx, "order cancelled")
	return cancelled, nil
}

func orderCreatedPayload(order *models.Order) payloads.OrderCreatedEvent {
	items := make([]payloads.OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderCreatedItem{
			ProductID:      item.ProductID.String(),
			VendorID:       order.StoreID.String(),
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:       order.ID.String(),
		CustomerID:    order.CustomerID.String(),
		Currency:      order.Currency,
		SubtotalCents: order.SubtotalCents,
		TaxCents:      order.TaxCents,
		ShippingCents: order.ShippingCents,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		Items:         items,
	}
}
