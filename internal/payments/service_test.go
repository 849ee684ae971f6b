package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/internal/orders"
	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox"
	"github.com/Joelisking/marketplace-api-sub000/pkg/paystack"
)

var testDDL = []string{
	`CREATE TABLE IF NOT EXISTS stores (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  name TEXT NOT NULL,
  subaccount_code TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  title TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  visible INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  store_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  currency TEXT NOT NULL DEFAULT 'GHS',
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  shipping_address TEXT,
  billing_address TEXT,
  cancel_reason TEXT,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  reference TEXT NOT NULL UNIQUE,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'GHS',
  provider TEXT NOT NULL DEFAULT 'paystack',
  status TEXT NOT NULL DEFAULT 'pending',
  provider_payload TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	splits     []paystack.CreateSplitRequest
	inits      []paystack.InitializeRequest
	refunds    []paystack.RefundRequest
	verifyWith *paystack.Transaction
	failNext   error
}

func (g *fakeGateway) CreateSplit(_ context.Context, req paystack.CreateSplitRequest) (*paystack.Split, error) {
	if g.failNext != nil {
		return nil, g.failNext
	}
	g.splits = append(g.splits, req)
	return &paystack.Split{ID: 1, SplitCode: "SPL_test", Active: true}, nil
}

func (g *fakeGateway) InitializeTransaction(_ context.Context, req paystack.InitializeRequest) (*paystack.Authorization, error) {
	if g.failNext != nil {
		return nil, g.failNext
	}
	g.inits = append(g.inits, req)
	return &paystack.Authorization{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*paystack.Transaction, error) {
	if g.verifyWith != nil {
		return g.verifyWith, nil
	}
	return &paystack.Transaction{Status: "abandoned", Reference: reference}, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, req paystack.RefundRequest) (*paystack.Refund, error) {
	if g.failNext != nil {
		return nil, g.failNext
	}
	g.refunds = append(g.refunds, req)
	return &paystack.Refund{ID: 1, Status: "processed", AmountMinor: req.AmountMinor}, nil
}

type fakePayoutOpener struct {
	calls  int
	shares []VendorShare
}

func (p *fakePayoutOpener) OpenForSettlement(_ context.Context, tx *gorm.DB, _ uuid.UUID, shares []VendorShare) (int, error) {
	if tx == nil {
		panic("settlement transaction required")
	}
	p.calls++
	p.shares = shares
	return len(shares), nil
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	gateway *fakeGateway
	payouts *fakePayoutOpener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, ddl := range testDDL {
		require.NoError(t, db.Exec(ddl).Error)
	}

	gateway := &fakeGateway{}
	payouts := &fakePayoutOpener{}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(db),
		Orders:  orders.NewRepository(db),
		Tx:      &testTxRunner{db: db},
		Gateway: gateway,
		Events:  outbox.NewService(outbox.NewRepository(db), nil),
		Payouts: payouts,
		Logger:  logger.NewNop(),
	})
	require.NoError(t, err)
	return &fixture{db: db, svc: svc, gateway: gateway, payouts: payouts}
}

// seedOrder writes a two-vendor order: 1200 + 800 of items, 3150 total.
func (f *fixture) seedOrder(t *testing.T) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		StoreID:       uuid.New(),
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.OrderPaymentStatusUnpaid,
		Currency:      "GHS",
		SubtotalCents: 2000,
		TaxCents:      150,
		ShippingCents: 1000,
		TotalCents:    3150,
	}
	require.NoError(t, f.db.Create(order).Error)

	subtotals := []int64{1200, 800}
	for i, subtotal := range subtotals {
		code := "ACCT_" + string(rune('a'+i))
		store := models.Store{ID: uuid.New(), OwnerID: uuid.New(), Name: "store", SubaccountCode: &code, IsActive: true}
		require.NoError(t, f.db.Create(&store).Error)
		product := models.Product{ID: uuid.New(), StoreID: store.ID, Title: "product", PriceCents: subtotal, StockQty: 10, Visible: true}
		require.NoError(t, f.db.Create(&product).Error)
		require.NoError(t, f.db.Create(&models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      product.ID,
			Qty:            1,
			UnitPriceCents: subtotal,
			LineTotalCents: subtotal,
		}).Error)
	}
	return order
}

func TestInitializeChargeOpensSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.seedOrder(t)

	session, err := f.svc.InitializeCharge(context.Background(), InitializeChargeInput{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Email:      "buyer@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3150), session.AmountCents)
	assert.Equal(t, "SPL_test", session.SplitCode)
	assert.Contains(t, session.AuthorizationURL, session.Reference)

	require.Len(t, f.gateway.splits, 1)
	shares := f.gateway.splits[0].Subaccounts
	require.Len(t, shares, 2)
	assert.ElementsMatch(t, []int64{38, 25}, []int64{shares[0].Share, shares[1].Share})

	require.Len(t, f.gateway.inits, 1)
	assert.Equal(t, int64(3150), f.gateway.inits[0].AmountMinor)
	assert.Equal(t, session.Reference, f.gateway.inits[0].Reference)

	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "reference = ?", session.Reference).Error)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, order.ID, payment.OrderID)
}

func TestInitializeChargeGatewayFailureLeavesNoPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.seedOrder(t)
	f.gateway.failNext = pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "provider down")

	_, err := f.svc.InitializeCharge(context.Background(), InitializeChargeInput{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Email:      "buyer@example.com",
	})
	require.Error(t, err)

	var paymentCount int64
	require.NoError(t, f.db.Model(&models.Payment{}).
		Where("order_id = ?", order.ID).
		Count(&paymentCount).Error)
	assert.Zero(t, paymentCount)
}

func TestInitializeChargeRejectsSettledOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.seedOrder(t)
	require.NoError(t, f.db.Model(order).Update("payment_status", enums.OrderPaymentStatusPaid).Error)

	_, err := f.svc.InitializeCharge(context.Background(), InitializeChargeInput{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Email:      "buyer@example.com",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestInitializeChargeRequiresSubaccounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.seedOrder(t)
	require.NoError(t, f.db.Model(&models.Store{}).Where("1 = 1").Update("subaccount_code", nil).Error)

	_, err := f.svc.InitializeCharge(context.Background(), InitializeChargeInput{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Email:      "buyer@example.com",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.gateway.splits)
}

func settleFixture(t *testing.T) (*fixture, *models.Order, string) {
	t.Helper()
	f := newFixture(t)
	order := f.seedOrder(t)
	session, err := f.svc.InitializeCharge(context.Background(), InitializeChargeInput{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Email:      "buyer@example.com",
	})
	require.NoError(t, err)
	return f, order, session.Reference
}

func TestApplySettlementMovesPaymentAndOrder(t *testing.T) {
	t.Parallel()

	f, order, reference := settleFixture(t)

	applied, err := f.svc.ApplySettlement(context.Background(), reference, []byte(`{"channel":"card"}`))
	require.NoError(t, err)
	assert.True(t, applied)

	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "reference = ?", reference).Error)
	assert.Equal(t, enums.PaymentStatusPaid, payment.Status)
	assert.JSONEq(t, `{"channel":"card"}`, string(payment.ProviderPayload))

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	assert.Equal(t, enums.OrderPaymentStatusPaid, reloaded.PaymentStatus)

	assert.Equal(t, 1, f.payouts.calls)
	require.Len(t, f.payouts.shares, 2)
	assert.ElementsMatch(t, []int64{1197, 788}, []int64{f.payouts.shares[0].AmountCents, f.payouts.shares[1].AmountCents})

	var eventCount int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentSettled).
		Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestApplySettlementRedeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	f, _, reference := settleFixture(t)
	ctx := context.Background()

	applied, err := f.svc.ApplySettlement(ctx, reference, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = f.svc.ApplySettlement(ctx, reference, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	// one payout opening, one settlement event
	assert.Equal(t, 1, f.payouts.calls)
	var eventCount int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentSettled).
		Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestApplySettlementUnknownReferenceIgnored(t *testing.T) {
	t.Parallel()

	// a reference no local payment carries is acknowledged, never bounced:
	// an error here would put the provider into an endless retry loop
	f := newFixture(t)
	applied, err := f.svc.ApplySettlement(context.Background(), "mkp_missing", nil)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Zero(t, f.payouts.calls)
}

func TestApplySettlementAfterCancellationHeldForRefund(t *testing.T) {
	t.Parallel()

	f, order, reference := settleFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Model(order).Update("status", enums.OrderStatusCancelled).Error)

	applied, err := f.svc.ApplySettlement(ctx, reference, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	// the money is recorded, but the cancelled order opens no payouts
	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "reference = ?", reference).Error)
	assert.Equal(t, enums.PaymentStatusPaid, payment.Status)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.Status)
	assert.Equal(t, enums.OrderPaymentStatusPaid, reloaded.PaymentStatus)

	assert.Zero(t, f.payouts.calls)
	var eventCount int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentSettled).
		Count(&eventCount).Error)
	assert.Zero(t, eventCount)

	// the captured funds leave through the refund path
	refunded, err := f.svc.Refund(ctx, reference, "order cancelled before settlement")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.Status)

	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
	assert.Equal(t, enums.OrderPaymentStatusRefunded, reloaded.PaymentStatus)
}

func TestVerifyChargeAppliesMissedSettlement(t *testing.T) {
	t.Parallel()

	f, order, reference := settleFixture(t)
	f.gateway.verifyWith = &paystack.Transaction{Status: "success", Reference: reference, AmountMinor: 3150}

	payment, err := f.svc.VerifyCharge(context.Background(), reference)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, payment.Status)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderPaymentStatusPaid, reloaded.PaymentStatus)
}

func TestVerifyChargeLeavesPendingWhenUnsettled(t *testing.T) {
	t.Parallel()

	f, _, reference := settleFixture(t)

	payment, err := f.svc.VerifyCharge(context.Background(), reference)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Zero(t, f.payouts.calls)
}

func TestRefundSettledPayment(t *testing.T) {
	t.Parallel()

	f, order, reference := settleFixture(t)
	ctx := context.Background()
	_, err := f.svc.ApplySettlement(ctx, reference, nil)
	require.NoError(t, err)

	payment, err := f.svc.Refund(ctx, reference, "four dead pixels")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, payment.Status)

	require.Len(t, f.gateway.refunds, 1)
	assert.Equal(t, reference, f.gateway.refunds[0].TransactionRef)
	assert.Equal(t, int64(3150), f.gateway.refunds[0].AmountMinor)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
	assert.Equal(t, enums.OrderPaymentStatusRefunded, reloaded.PaymentStatus)
}

func TestRefundRejectsPendingPayment(t *testing.T) {
	t.Parallel()

	f, _, reference := settleFixture(t)

	_, err := f.svc.Refund(context.Background(), reference, "too early")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, f.gateway.refunds)
}

func TestRefundGatewayRejectionKeepsState(t *testing.T) {
	t.Parallel()

	f, order, reference := settleFixture(t)
	ctx := context.Background()
	_, err := f.svc.ApplySettlement(ctx, reference, nil)
	require.NoError(t, err)

	f.gateway.failNext = pkgerrors.New(pkgerrors.CodeDependency, "refund window closed")
	_, err = f.svc.Refund(ctx, reference, "late")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "reference = ?", reference).Error)
	assert.Equal(t, enums.PaymentStatusPaid, payment.Status)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderPaymentStatusPaid, reloaded.PaymentStatus)
}
