package router

import (
	"github.com/gorilla/mux"

	"github.com/nyumbani/service-rentpay/service/handler"
)

// NewRouter wires the payment surface. The auth middleware is supplied by
// the caller because authentication lives outside this service; callback
// endpoints stay public since the provider authenticates by URL secrecy and
// the handlers treat every payload as untrusted anyway.
func NewRouter(rs *handler.RentPayServer, auth mux.MiddlewareFunc) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	// Health check endpoint
	router.HandleFunc("/health", handler.HealthHandler).Methods("GET")

	// Provider callback endpoints
	router.HandleFunc("/api/payments/callback", rs.HandleStkCallback).Methods("POST")
	router.HandleFunc("/api/payments/b2b-callback", rs.HandleB2BResult).Methods("POST")
	router.HandleFunc("/api/payments/b2b-timeout", rs.HandleB2BTimeout).Methods("POST")

	// Authenticated payment endpoints
	api := router.PathPrefix("/api/payments").Subrouter()
	if auth != nil {
		api.Use(auth)
	}
	api.HandleFunc("/initiate", rs.InitiatePayment).Methods("POST")
	api.HandleFunc("/history/{tenantId}", rs.PaymentHistory).Methods("GET")
	api.HandleFunc("/property/{propertyId}", rs.PaymentsByProperty).Methods("GET")
	api.HandleFunc("/balance/{tenantId}", rs.RentBalance).Methods("GET")
	api.HandleFunc("/disburse/{paymentId}", rs.ManualDisbursement).Methods("POST")
	api.HandleFunc("/disbursement-status/{paymentId}", rs.DisbursementStatus).Methods("GET")
	api.HandleFunc("/disbursements/owner", rs.OwnerDisbursements).Methods("GET")
	api.HandleFunc("/retry-failed-disbursements", rs.RetryFailedDisbursements).Methods("POST")

	return router
}
