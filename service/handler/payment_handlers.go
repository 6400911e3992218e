package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type initiatePaymentRequest struct {
	PropertyID  string          `json:"propertyId"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phoneNumber"`
}

// InitiatePayment starts a rent collection by pushing a payment prompt to
// the tenant's phone. The synchronous response only confirms dispatch, the
// outcome lands on the collection callback.
func (rs *RentPayServer) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := rs.Service.L(ctx).WithField("type", "InitiatePaymentHandler")

	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var request initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.WithError(err).Error("failed to decode initiate request")
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request body"})
		return
	}

	record, err := rs.Collections.Initiate(ctx, caller, request.PropertyID, request.Amount, request.PhoneNumber)
	if err != nil {
		logger.WithError(err).Error("payment initiation failed")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"message":            "STK Push sent successfully",
		"paymentId":          record.GetID(),
		"checkoutRequestId":  record.CheckoutRequestID,
		"merchantRequestId":  record.MerchantRequestID,
		"transactionRef":     record.TransactionRef,
		"amount":             record.Amount.Decimal,
		"platformFee":        record.PlatformFee.Decimal,
		"disbursementAmount": record.DisbursementAmount.Decimal,
	})
}

// PaymentHistory lists a tenant's collection attempts, newest first.
func (rs *RentPayServer) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := principal(w, r)
	if !ok {
		return
	}

	tenantID := mux.Vars(r)["tenantId"]
	payments, err := rs.Collections.History(ctx, caller, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"payments": payments})
}

// PaymentsByProperty lists collections against one property for its owner.
func (rs *RentPayServer) PaymentsByProperty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := principal(w, r)
	if !ok {
		return
	}

	propertyID := mux.Vars(r)["propertyId"]
	payments, err := rs.Collections.ListByProperty(ctx, caller, propertyID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"payments": payments})
}

// RentBalance serves the outstanding balance projection for a tenant.
func (rs *RentPayServer) RentBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := principal(w, r)
	if !ok {
		return
	}

	tenantID := mux.Vars(r)["tenantId"]
	balance, err := rs.Balances.Get(ctx, caller, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"balance": balance})
}
