package payloads

import "time"

// OrderCreatedEvent is recorded when checkout commits an order.
type OrderCreatedEvent struct {
	OrderID       string             `json:"order_id"`
	CustomerID    string             `json:"customer_id"`
	Reference     string             `json:"reference"`
	Currency      string             `json:"currency"`
	SubtotalCents int64              `json:"subtotal_cents"`
	TaxCents      int64              `json:"tax_cents"`
	ShippingCents int64              `json:"shipping_cents"`
	DiscountCents int64              `json:"discount_cents"`
	TotalCents    int64              `json:"total_cents"`
	Items         []OrderCreatedItem `json:"items"`
}

// OrderCreatedItem captures the per-line snapshot taken at checkout.
type OrderCreatedItem struct {
	ProductID      string `json:"product_id"`
	VendorID       string `json:"vendor_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// PaymentSettledEvent is recorded once a charge is confirmed by the provider.
type PaymentSettledEvent struct {
	PaymentID   string            `json:"payment_id"`
	OrderID     string            `json:"order_id"`
	CustomerID  string            `json:"customer_id"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency"`
	AmountCents int64             `json:"amount_cents"`
	SettledAt   time.Time         `json:"settled_at"`
	VendorCuts  []VendorShareSlip `json:"vendor_cuts"`
}

// VendorShareSlip is the per-vendor slice of a settled payment, used to
// open payouts downstream.
type VendorShareSlip struct {
	VendorID       string `json:"vendor_id"`
	SubaccountCode string `json:"subaccount_code,omitempty"`
	SharePercent   int64  `json:"share_percent"`
	AmountCents    int64  `json:"amount_cents"`
}

// OrderCancelledEvent is recorded when an order leaves the fulfillment path.
type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PaymentRefundedEvent is recorded after the provider accepts a refund.
type PaymentRefundedEvent struct {
	PaymentID   string    `json:"payment_id"`
	OrderID     string    `json:"order_id"`
	Reference   string    `json:"reference"`
	AmountCents int64     `json:"amount_cents"`
	RefundedAt  time.Time `json:"refunded_at"`
}
