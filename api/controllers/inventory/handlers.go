package inventory

import (
	"net/http"
	"strings"

	"github.com/Joelisking/marketplace-api-sub000/api/responses"
	"github.com/Joelisking/marketplace-api-sub000/api/validators"
	inventorysvc "github.com/Joelisking/marketplace-api-sub000/internal/inventory"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

type restockRequest struct {
	Qty    int    `json:"qty" validate:"required,min=1,max=100000"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type historyResponse struct {
	Entries    any    `json:"entries"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Restock adds quantity to a product and records a ledger entry.
func Restock(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Restock(r.Context(), productID, payload.Qty, payload.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stock, err := svc.ReconstructStock(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"product_id": productID, "ledger_stock": stock})
	}
}

// History pages through a product's inventory ledger.
func History(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, next, err := svc.History(r.Context(), productID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, historyResponse{Entries: entries, NextCursor: next})
	}
}
