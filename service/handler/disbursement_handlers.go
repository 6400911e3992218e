package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nyumbani/service-rentpay/service/business"
)

// ManualDisbursement lets an owner or admin push a payout for a settled
// collection, typically after an automatic attempt failed.
func (rs *RentPayServer) ManualDisbursement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := rs.Service.L(ctx).WithField("type", "ManualDisbursementHandler")

	caller, ok := principal(w, r)
	if !ok {
		return
	}

	paymentID := mux.Vars(r)["paymentId"]
	record, err := rs.Disbursements.InitiateByID(ctx, caller, paymentID)
	if err != nil {
		logger.WithError(err).WithField("payment_id", paymentID).Error("manual disbursement failed")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"message":            "Disbursement initiated",
		"paymentId":          record.GetID(),
		"disbursementStatus": record.DisbursementStatus,
		"conversationId":     record.DisbursementConversationID,
	})
}

// DisbursementStatus reports the payout sub-state of one payment.
func (rs *RentPayServer) DisbursementStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := principal(w, r)
	if !ok {
		return
	}

	paymentID := mux.Vars(r)["paymentId"]
	record, err := rs.Disbursements.Status(ctx, caller, paymentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"paymentId":                 record.GetID(),
		"disbursementStatus":        record.DisbursementStatus,
		"disbursementAmount":        record.DisbursementAmount.Decimal,
		"disbursementTransactionId": record.DisbursementTransactionID,
		"disbursementDate":          record.DisbursementDate,
		"disbursementFailureReason": record.DisbursementFailureReason,
	})
}

// OwnerDisbursements aggregates the calling owner's payout position.
func (rs *RentPayServer) OwnerDisbursements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := principal(w, r)
	if !ok {
		return
	}

	summary, err := rs.Disbursements.ListByOwner(ctx, caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"disbursements": summary})
}

type retryFailedRequest struct {
	Limit int `json:"limit"`
}

// RetryFailedDisbursements re-attempts failed payouts in a bounded batch.
// Admin only; one record failing never aborts the rest.
func (rs *RentPayServer) RetryFailedDisbursements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := rs.Service.L(ctx).WithField("type", "RetryFailedDisbursementsHandler")

	caller, ok := principal(w, r)
	if !ok {
		return
	}
	if !caller.IsAdmin() {
		writeError(w, business.ErrNotAuthorized)
		return
	}

	var request retryFailedRequest
	if r.Body != nil {
		// absent or empty body means the configured default batch size
		_ = json.NewDecoder(r.Body).Decode(&request)
	}

	result, err := rs.Disbursements.RetryFailed(ctx, request.Limit)
	if err != nil {
		logger.WithError(err).Error("retry batch failed")
		writeError(w, err)
		return
	}

	logger.WithField("attempted", result.Attempted).
		WithField("successful", result.Successful).
		WithField("failed", result.Failed).
		Info("retry batch finished")

	writeSuccess(w, map[string]any{"result": result})
}
