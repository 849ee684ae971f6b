package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Joelisking/marketplace-api-sub000/api/controllers"
	cartcontrollers "github.com/Joelisking/marketplace-api-sub000/api/controllers/cart"
	inventorycontrollers "github.com/Joelisking/marketplace-api-sub000/api/controllers/inventory"
	ordercontrollers "github.com/Joelisking/marketplace-api-sub000/api/controllers/orders"
	paymentcontrollers "github.com/Joelisking/marketplace-api-sub000/api/controllers/payments"
	payoutcontrollers "github.com/Joelisking/marketplace-api-sub000/api/controllers/payouts"
	webhookcontrollers "github.com/Joelisking/marketplace-api-sub000/api/controllers/webhooks"
	"github.com/Joelisking/marketplace-api-sub000/api/middleware"
	"github.com/Joelisking/marketplace-api-sub000/internal/cart"
	"github.com/Joelisking/marketplace-api-sub000/internal/inventory"
	"github.com/Joelisking/marketplace-api-sub000/internal/orders"
	"github.com/Joelisking/marketplace-api-sub000/internal/payments"
	"github.com/Joelisking/marketplace-api-sub000/internal/payouts"
	"github.com/Joelisking/marketplace-api-sub000/pkg/config"
	"github.com/Joelisking/marketplace-api-sub000/pkg/db"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/metrics"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/idempotency"
	"github.com/Joelisking/marketplace-api-sub000/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	cartService cart.Service,
	inventoryService inventory.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	payoutsService payouts.Service,
	webhookGuard *idempotency.Manager,
	checkoutMetrics *metrics.CheckoutMetrics,
	promGatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if promGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit("webhook", cfg.RateLimit.WebhookLimit, cfg.RateLimit.WebhookWindow, redisClient, logg))
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(paymentsService, cfg.Paystack, webhookGuard, checkoutMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit("api", cfg.RateLimit.APILimit, cfg.RateLimit.APIWindow, redisClient, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.Fetch(cartService, logg))
			r.Delete("/", cartcontrollers.Clear(cartService, logg))
			r.Post("/items", cartcontrollers.AddItem(cartService, logg))
			r.Patch("/items/{productID}", cartcontrollers.UpdateItem(cartService, logg))
			r.Delete("/items/{productID}", cartcontrollers.RemoveItem(cartService, logg))
		})

		r.Post("/checkout", ordercontrollers.Checkout(ordersService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/{orderID}", ordercontrollers.Fetch(ordersService, logg))
			r.Get("/{orderID}/split", ordercontrollers.SplitQuote(paymentsService, logg))
			r.Post("/{orderID}/pay", ordercontrollers.Pay(paymentsService, logg))
			r.Post("/{orderID}/cancel", ordercontrollers.Cancel(ordersService, logg))
			r.With(middleware.RequireAnyRole(logg, string(enums.RoleVendor), string(enums.RoleAdmin))).
				Patch("/{orderID}/status", ordercontrollers.UpdateStatus(ordersService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/{reference}", paymentcontrollers.Verify(paymentsService, logg))
			r.With(middleware.RequireRole(string(enums.RoleAdmin), logg)).
				Post("/{reference}/refund", paymentcontrollers.Refund(paymentsService, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Use(middleware.RequireAnyRole(logg, string(enums.RoleVendor), string(enums.RoleAdmin)))
			r.Post("/{productID}/restock", inventorycontrollers.Restock(inventoryService, logg))
			r.Get("/{productID}/history", inventorycontrollers.History(inventoryService, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Use(middleware.RequireAnyRole(logg, string(enums.RoleVendor), string(enums.RoleAdmin)))
			r.Get("/", payoutcontrollers.List(payoutsService, logg))
			r.Get("/{payoutID}", payoutcontrollers.Fetch(payoutsService, logg))
			r.With(middleware.RequireRole(string(enums.RoleAdmin), logg)).
				Post("/{payoutID}/complete", payoutcontrollers.Complete(payoutsService, logg))
			r.With(middleware.RequireRole(string(enums.RoleAdmin), logg)).
				Post("/{payoutID}/fail", payoutcontrollers.Fail(payoutsService, logg))
		})
	})

	return r
}
