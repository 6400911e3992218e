package business

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"

	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/nyumbani/service-rentpay/service/repository"
	"github.com/nyumbani/service-rentpay/service/utility"
)

// balanceWindow caps how many recent successful payments feed the balance
// projection.
const balanceWindow = 5

// Balance is the outstanding-balance-and-due-date projection for a tenant.
// It derives purely from terminal-success collection records.
type Balance struct {
	TenantID        string                  `json:"tenant_id"`
	PropertyID      string                  `json:"property_id"`
	TotalRent       decimal.Decimal         `json:"total_rent"`
	TotalPaid       decimal.Decimal         `json:"total_paid"`
	Balance         decimal.Decimal         `json:"balance"`
	DueDate         time.Time               `json:"due_date"`
	LastPaymentDate *time.Time              `json:"last_payment_date,omitempty"`
	RecentPayments  []*models.PaymentRecord `json:"recent_payments"`
}

type BalanceBusiness interface {
	Get(ctx context.Context, principal Principal, tenantUserID string) (*Balance, error)
}

type balanceBusiness struct {
	service    *frame.Service
	payments   repository.PaymentRepository
	properties repository.PropertyRepository
}

func NewBalanceBusiness(_ context.Context, service *frame.Service,
	payments repository.PaymentRepository, properties repository.PropertyRepository) BalanceBusiness {
	return &balanceBusiness{
		service:    service,
		payments:   payments,
		properties: properties,
	}
}

func (bb *balanceBusiness) Get(ctx context.Context, principal Principal, tenantUserID string) (*Balance, error) {
	if principal.Role == RoleTenant && principal.ID != tenantUserID {
		return nil, ErrNotAuthorized
	}

	propertyID := principal.LinkedPropertyID
	if principal.ID != tenantUserID || propertyID == "" {
		// owner or admin asking about a tenant: resolve through the most
		// recent record since the linkage lives with the external user store
		recent, err := bb.payments.ListByTenant(ctx, tenantUserID)
		if err != nil {
			return nil, err
		}
		if len(recent) == 0 {
			return nil, ErrPropertyNotFound
		}
		propertyID = recent[0].PropertyID
	}

	property, err := bb.properties.GetByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, repository.ErrPropertyNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}

	payments, err := bb.payments.RecentSuccessful(ctx, tenantUserID, propertyID, balanceWindow)
	if err != nil {
		return nil, err
	}

	totalPaid := decimal.Zero
	for _, payment := range payments {
		if payment.Amount.Valid {
			totalPaid = totalPaid.Add(payment.Amount.Decimal)
		}
	}

	rentAmount := decimal.Zero
	if property.RentAmount.Valid {
		rentAmount = property.RentAmount.Decimal
	}

	balance := &Balance{
		TenantID:       tenantUserID,
		PropertyID:     propertyID,
		TotalRent:      rentAmount,
		TotalPaid:      totalPaid,
		Balance:        utility.OutstandingBalance(rentAmount, totalPaid),
		DueDate:        utility.NextDueDate(time.Now()),
		RecentPayments: payments,
	}
	if len(payments) > 0 {
		balance.LastPaymentDate = &payments[0].CreatedAt
	}
	return balance, nil
}
