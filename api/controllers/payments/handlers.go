package payments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Joelisking/marketplace-api-sub000/api/responses"
	"github.com/Joelisking/marketplace-api-sub000/api/validators"
	paymentsvc "github.com/Joelisking/marketplace-api-sub000/internal/payments"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
)

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Verify reconciles a charge against the provider and returns the payment.
func Verify(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, err := referenceFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.VerifyCharge(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// Refund reverses a settled charge. Admin surface only.
func Refund(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, err := referenceFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Refund(r.Context(), reference, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func referenceFromPath(r *http.Request) (string, error) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	return reference, nil
}
