package business

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nyumbani/service-rentpay/service/coreapi"
	"github.com/nyumbani/service-rentpay/service/models"
)

func TestCollectionInitiate(t *testing.T) {
	tests := []struct {
		name        string
		principal   Principal
		propertyID  string
		amount      decimal.Decimal
		phoneNumber string
		expectError error
	}{
		{
			name:        "happy path dispatches a push prompt",
			principal:   tenantPrincipal(),
			propertyID:  "prop-1",
			amount:      decimal.NewFromInt(25000),
			phoneNumber: "0712345678",
		},
		{
			name:        "amount below minimum",
			principal:   tenantPrincipal(),
			propertyID:  "prop-1",
			amount:      decimal.Zero,
			phoneNumber: "0712345678",
			expectError: ErrInvalidAmount,
		},
		{
			name:        "amount above maximum",
			principal:   tenantPrincipal(),
			propertyID:  "prop-1",
			amount:      decimal.NewFromInt(150001),
			phoneNumber: "0712345678",
			expectError: ErrInvalidAmount,
		},
		{
			name:        "unknown property",
			principal:   tenantPrincipal(),
			propertyID:  "prop-missing",
			amount:      decimal.NewFromInt(25000),
			phoneNumber: "0712345678",
			expectError: ErrPropertyNotFound,
		},
		{
			name: "tenant linked to a different property",
			principal: Principal{
				ID: "tenant-2", Name: "Other Tenant", Role: RoleTenant, LinkedPropertyID: "prop-9",
			},
			propertyID:  "prop-1",
			amount:      decimal.NewFromInt(25000),
			phoneNumber: "0712345678",
			expectError: ErrTenantNotLinked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, service := testService()
			payments := newMemoryPaymentRepository()
			properties := newMemoryPropertyRepository(testProperty())

			gateway := &mockGateway{}
			gateway.On("InitiateSTKPush", mock.Anything, "254712345678", mock.Anything, "PROP-001", mock.Anything).
				Return(&coreapi.STKPushResponse{
					MerchantRequestID: "merchant-1",
					CheckoutRequestID: "checkout-1",
					ResponseCode:      "0",
				}, nil)

			disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
			collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
			require.NoError(t, err)

			record, err := collections.Initiate(ctx, tt.principal, tt.propertyID, tt.amount, tt.phoneNumber)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				gateway.AssertNumberOfCalls(t, "InitiateSTKPush", 0)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, models.CollectionStatusPending, record.Status)
			assert.Equal(t, models.DisbursementStatusPending, record.DisbursementStatus)
			assert.Equal(t, "checkout-1", record.CheckoutRequestID)
			assert.Equal(t, "merchant-1", record.MerchantRequestID)
			assert.Equal(t, "254712345678", record.PhoneNumber)
			assert.Equal(t, "owner-1", record.OwnerID)
			assert.Equal(t, "600100", record.OwnerPaybill)
			assert.NotEmpty(t, record.TransactionRef)

			// fee split persisted at creation
			assert.True(t, decimal.NewFromInt(1250).Equal(record.PlatformFee.Decimal))
			assert.True(t, decimal.NewFromInt(23750).Equal(record.DisbursementAmount.Decimal))

			stored, err := payments.GetByID(ctx, record.GetID())
			require.NoError(t, err)
			assert.Equal(t, "checkout-1", stored.CheckoutRequestID)
		})
	}
}

func TestCollectionInitiateGatewayFailureKeepsAuditRecord(t *testing.T) {
	ctx, service := testService()
	payments := newMemoryPaymentRepository()
	properties := newMemoryPropertyRepository(testProperty())

	gateway := &mockGateway{}
	gateway.On("InitiateSTKPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &coreapi.RequestError{Operation: "stk push", Message: "Invalid Access Token"})

	disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
	collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
	require.NoError(t, err)

	record, err := collections.Initiate(ctx, tenantPrincipal(), "prop-1",
		decimal.NewFromInt(25000), "0712345678")

	require.Error(t, err)
	var requestErr *coreapi.RequestError
	assert.ErrorAs(t, err, &requestErr)

	// the failed attempt stays on file
	require.NotNil(t, record)
	stored, getErr := payments.GetByID(ctx, record.GetID())
	require.NoError(t, getErr)
	assert.Equal(t, models.CollectionStatusFailed, stored.Status)
	assert.Equal(t, "mpesa: stk push rejected: Invalid Access Token", stored.FailureReason)
	gateway.AssertNumberOfCalls(t, "InitiateB2B", 0)
}

func TestCollectionProcessCallback(t *testing.T) {
	successCallback := func() *models.StkCallback {
		callback := &models.StkCallback{
			MerchantRequestID: "merchant-1",
			CheckoutRequestID: "checkout-1",
			ResultCode:        models.ResultCodeSuccess,
			ResultDesc:        "The service request is processed successfully.",
		}
		callback.CallbackMetadata.Item = []models.MetadataItem{
			{Name: "Amount", Value: 25000.0},
			{Name: models.MetadataReceiptNumber, Value: "RKT12345"},
			{Name: "PhoneNumber", Value: 254712345678.0},
		}
		return callback
	}

	t.Run("success settles the record and triggers auto disbursement", func(t *testing.T) {
		ctx, service := testService()
		payments := newMemoryPaymentRepository()
		properties := newMemoryPropertyRepository(testProperty())

		pending := settledRecord("pay-1")
		pending.Status = models.CollectionStatusPending
		pending.CheckoutRequestID = "checkout-1"
		require.NoError(t, payments.Create(ctx, pending))

		gateway := &mockGateway{}
		gateway.On("InitiateB2B", mock.Anything, "600100", mock.Anything, "OWNER-ACC", mock.Anything).
			Return(&coreapi.B2BResponse{
				ConversationID:           "AG_1",
				OriginatorConversationID: "orig-1",
				ResponseCode:             "0",
			}, nil)

		disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
		collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
		require.NoError(t, err)

		require.NoError(t, collections.ProcessCallback(ctx, successCallback()))

		stored, err := payments.GetByID(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, models.CollectionStatusSuccess, stored.Status)
		// provider receipt supersedes the internal reference
		assert.Equal(t, "RKT12345", stored.TransactionRef)
		assert.Equal(t, "RKT12345", stored.Extra[models.MetadataReceiptNumber])
		assert.Equal(t, models.DisbursementStatusProcessing, stored.DisbursementStatus)
		assert.Equal(t, "AG_1", stored.DisbursementConversationID)
		gateway.AssertNumberOfCalls(t, "InitiateB2B", 1)
	})

	t.Run("duplicate delivery is a no-op", func(t *testing.T) {
		ctx, service := testService()
		payments := newMemoryPaymentRepository()
		properties := newMemoryPropertyRepository(testProperty())

		pending := settledRecord("pay-1")
		pending.Status = models.CollectionStatusPending
		pending.CheckoutRequestID = "checkout-1"
		require.NoError(t, payments.Create(ctx, pending))

		gateway := &mockGateway{}
		gateway.On("InitiateB2B", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&coreapi.B2BResponse{ConversationID: "AG_1", ResponseCode: "0"}, nil)

		disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
		collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
		require.NoError(t, err)

		require.NoError(t, collections.ProcessCallback(ctx, successCallback()))
		require.NoError(t, collections.ProcessCallback(ctx, successCallback()))

		// the payout fired exactly once despite the duplicate webhook
		gateway.AssertNumberOfCalls(t, "InitiateB2B", 1)
	})

	t.Run("failure result marks the record failed and skips disbursement", func(t *testing.T) {
		ctx, service := testService()
		payments := newMemoryPaymentRepository()
		properties := newMemoryPropertyRepository(testProperty())

		pending := settledRecord("pay-1")
		pending.Status = models.CollectionStatusPending
		pending.CheckoutRequestID = "checkout-1"
		require.NoError(t, payments.Create(ctx, pending))

		gateway := &mockGateway{}
		disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
		collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
		require.NoError(t, err)

		callback := &models.StkCallback{
			CheckoutRequestID: "checkout-1",
			ResultCode:        1032,
			ResultDesc:        "Request cancelled by user",
		}
		require.NoError(t, collections.ProcessCallback(ctx, callback))

		stored, err := payments.GetByID(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, models.CollectionStatusFailed, stored.Status)
		assert.Equal(t, "Request cancelled by user", stored.FailureReason)
		assert.Equal(t, models.DisbursementStatusPending, stored.DisbursementStatus)
		gateway.AssertNumberOfCalls(t, "InitiateB2B", 0)
	})

	t.Run("unknown checkout request id is acked and dropped", func(t *testing.T) {
		ctx, service := testService()
		payments := newMemoryPaymentRepository()
		properties := newMemoryPropertyRepository(testProperty())

		gateway := &mockGateway{}
		disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
		collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
		require.NoError(t, err)

		callback := &models.StkCallback{CheckoutRequestID: "never-seen", ResultCode: 0}
		assert.NoError(t, collections.ProcessCallback(ctx, callback))
	})
}

func TestCollectionHistoryAuthorization(t *testing.T) {
	ctx, service := testService()
	payments := newMemoryPaymentRepository()
	properties := newMemoryPropertyRepository(testProperty())
	require.NoError(t, payments.Create(ctx, settledRecord("pay-1")))

	gateway := &mockGateway{}
	disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
	collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
	require.NoError(t, err)

	records, err := collections.History(ctx, tenantPrincipal(), "tenant-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = collections.History(ctx, tenantPrincipal(), "tenant-2")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	admin := Principal{ID: "admin-1", Role: RoleAdmin}
	records, err = collections.History(ctx, admin, "tenant-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCollectionListByProperty(t *testing.T) {
	ctx, service := testService()
	payments := newMemoryPaymentRepository()
	properties := newMemoryPropertyRepository(testProperty())
	require.NoError(t, payments.Create(ctx, settledRecord("pay-1")))

	gateway := &mockGateway{}
	disbursements := NewDisbursementBusiness(ctx, service, testConfig(), gateway, payments)
	collections, err := NewCollectionBusiness(ctx, service, testConfig(), gateway, payments, properties, disbursements)
	require.NoError(t, err)

	owner := Principal{ID: "owner-1", Role: RoleOwner}
	records, err := collections.ListByProperty(ctx, owner, "prop-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	stranger := Principal{ID: "owner-2", Role: RoleOwner}
	_, err = collections.ListByProperty(ctx, stranger, "prop-1")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = collections.ListByProperty(ctx, owner, "prop-missing")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}
