package payouts

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Joelisking/marketplace-api-sub000/api/middleware"
	"github.com/Joelisking/marketplace-api-sub000/api/responses"
	"github.com/Joelisking/marketplace-api-sub000/api/validators"
	payoutsvc "github.com/Joelisking/marketplace-api-sub000/internal/payouts"
	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

type listResponse struct {
	Payouts    any    `json:"payouts"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// List pages through the authenticated vendor's payouts.
func List(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.PayoutStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}

		rows, next, err := svc.ListForVendor(r.Context(), vendorID, status, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listResponse{Payouts: rows, NextCursor: next})
	}
}

// Fetch loads one payout, scoped to its owning vendor unless the actor is an
// admin.
func Fetch(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.ParsePathUUID(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if middleware.RoleFromContext(r.Context()) != string(enums.RoleAdmin) {
			vendorID, err := vendorIDFromContext(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payout.VendorID != vendorID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found"))
				return
			}
		}
		responses.WriteSuccess(w, payout)
	}
}

// Complete records an externally processed payout. Admin surface only.
func Complete(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, svc.MarkCompleted)
}

// Fail records a payout the external processor rejected. Admin surface only.
func Fail(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, svc.MarkFailed)
}

func transition(logg *logger.Logger, move func(context.Context, uuid.UUID) (*models.VendorPayout, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.ParsePathUUID(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := move(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

func vendorIDFromContext(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor context missing")
	}
	vendorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid vendor id")
	}
	return vendorID, nil
}
