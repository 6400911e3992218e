package coreapi

import (
	"context"

	"github.com/shopspring/decimal"
)

// MpesaApiClient is the seam the orchestrators depend on. Both operations
// are fire and forget: a nil error only means the provider accepted the
// request for processing, settlement is reported later via webhook.
type MpesaApiClient interface {
	GenerateAccessToken(ctx context.Context) (string, error)
	InitiateSTKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, accountReference, transactionDesc string) (*STKPushResponse, error)
	InitiateB2B(ctx context.Context, receiverPaybill string, amount decimal.Decimal, accountReference, remarks string) (*B2BResponse, error)
}
