package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/frame"

	"github.com/nyumbani/service-rentpay/service/business"
	"github.com/nyumbani/service-rentpay/service/coreapi"
	"github.com/nyumbani/service-rentpay/service/utility"
)

// RentPayServer carries the orchestrators the HTTP surface delegates to.
// Authentication and authorization of the caller happen in middleware
// outside this service; handlers only read the resulting principal.
type RentPayServer struct {
	Service       *frame.Service
	Collections   business.CollectionBusiness
	Disbursements business.DisbursementBusiness
	Balances      business.BalanceBusiness
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["success"] = true
	writeJSON(w, http.StatusOK, payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var requestErr *coreapi.RequestError
	switch {
	case errors.Is(err, business.ErrInvalidAmount),
		errors.Is(err, utility.ErrInvalidPhoneNumber):
		status = http.StatusBadRequest
	case errors.Is(err, business.ErrTenantNotLinked),
		errors.Is(err, business.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, business.ErrPaymentNotFound),
		errors.Is(err, business.ErrPropertyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, business.ErrCollectionNotSettled):
		status = http.StatusPreconditionFailed
	case errors.As(err, &requestErr),
		errors.Is(err, coreapi.ErrAuthenticationFailed),
		errors.Is(err, coreapi.ErrOperatorCredentialsMissing):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]any{"success": false, "message": err.Error()})
}

// principal resolves the authenticated caller or answers 401 itself,
// reporting whether the handler may continue.
func principal(w http.ResponseWriter, r *http.Request) (business.Principal, bool) {
	p, ok := business.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "authentication required"})
		return business.Principal{}, false
	}
	return p, true
}
