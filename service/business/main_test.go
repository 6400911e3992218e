package business

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/nyumbani/service-rentpay/config"
	"github.com/nyumbani/service-rentpay/service/coreapi"
	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/nyumbani/service-rentpay/service/repository"
)

func testService() (context.Context, *frame.Service) {
	return frame.NewService("rentpay_tests")
}

func testConfig() *config.RentPayConfig {
	return &config.RentPayConfig{
		Currency:              "KES",
		PlatformFeePercent:    "5",
		DisburseAutomatically: true,
		DisburseRetryBatch:    50,
	}
}

// mockGateway is a testify mock over the provider client boundary.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GenerateAccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) InitiateSTKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, accountReference, transactionDesc string) (*coreapi.STKPushResponse, error) {
	args := m.Called(ctx, phoneNumber, amount, accountReference, transactionDesc)
	if response, ok := args.Get(0).(*coreapi.STKPushResponse); ok {
		return response, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) InitiateB2B(ctx context.Context, receiverPaybill string, amount decimal.Decimal, accountReference, remarks string) (*coreapi.B2BResponse, error) {
	args := m.Called(ctx, receiverPaybill, amount, accountReference, remarks)
	if response, ok := args.Get(0).(*coreapi.B2BResponse); ok {
		return response, args.Error(1)
	}
	return nil, args.Error(1)
}

// memoryPaymentRepository keeps records in memory while preserving the
// conditional-update contract, so the state machine guards are exercised the
// same way the database enforces them.
type memoryPaymentRepository struct {
	mu      sync.Mutex
	records map[string]*models.PaymentRecord
	order   []string
}

func newMemoryPaymentRepository() *memoryPaymentRepository {
	return &memoryPaymentRepository{records: map[string]*models.PaymentRecord{}}
}

func clone(record *models.PaymentRecord) *models.PaymentRecord {
	copied := *record
	return &copied
}

func (r *memoryPaymentRepository) Create(_ context.Context, record *models.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.records[record.GetID()] = clone(record)
	r.order = append(r.order, record.GetID())
	return nil
}

func (r *memoryPaymentRepository) Save(_ context.Context, record *models.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.GetID()]; !ok {
		r.order = append(r.order, record.GetID())
	}
	r.records[record.GetID()] = clone(record)
	return nil
}

func (r *memoryPaymentRepository) GetByID(_ context.Context, id string) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return clone(record), nil
}

func (r *memoryPaymentRepository) GetByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.CheckoutRequestID == checkoutRequestID {
			return clone(record), nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (r *memoryPaymentRepository) GetByConversationID(_ context.Context, conversationID string) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.DisbursementConversationID == conversationID {
			return clone(record), nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func applyFields(record *models.PaymentRecord, fields map[string]any) {
	for column, value := range fields {
		switch column {
		case "status":
			record.Status = value.(string)
		case "failure_reason":
			record.FailureReason = value.(string)
		case "transaction_ref":
			record.TransactionRef = value.(string)
		case "extra":
			record.Extra = value.(datatypes.JSONMap)
		case "disbursement_status":
			record.DisbursementStatus = value.(string)
		case "disbursement_failure_reason":
			record.DisbursementFailureReason = value.(string)
		case "disbursement_conversation_id":
			record.DisbursementConversationID = value.(string)
		case "disbursement_originator_conversation_id":
			record.DisbursementOriginatorConversationID = value.(string)
		case "disbursement_transaction_id":
			record.DisbursementTransactionID = value.(string)
		case "disbursement_date":
			when := value.(time.Time)
			record.DisbursementDate = &when
		}
	}
}

func (r *memoryPaymentRepository) UpdateCollectionState(_ context.Context, id string, fromStates []string, fields map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return false, nil
	}
	for _, state := range fromStates {
		if record.Status == state {
			applyFields(record, fields)
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryPaymentRepository) UpdateDisbursementState(_ context.Context, id string, fromStates []string, fields map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return false, nil
	}
	for _, state := range fromStates {
		if record.DisbursementStatus == state {
			applyFields(record, fields)
			return true, nil
		}
	}
	return false, nil
}

// all returns clones newest first, mirroring the created_at DESC ordering
// the queries use.
func (r *memoryPaymentRepository) all() []*models.PaymentRecord {
	var records []*models.PaymentRecord
	for i := len(r.order) - 1; i >= 0; i-- {
		records = append(records, clone(r.records[r.order[i]]))
	}
	return records
}

func (r *memoryPaymentRepository) RecentSuccessful(_ context.Context, tenantUserID, propertyID string, limit int) ([]*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []*models.PaymentRecord
	for _, record := range r.all() {
		if record.TenantUserID == tenantUserID && record.PropertyID == propertyID &&
			record.Status == models.CollectionStatusSuccess && len(records) < limit {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memoryPaymentRepository) ListByTenant(_ context.Context, tenantUserID string) ([]*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []*models.PaymentRecord
	for _, record := range r.all() {
		if record.TenantUserID == tenantUserID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memoryPaymentRepository) ListByProperty(_ context.Context, propertyID string) ([]*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []*models.PaymentRecord
	for _, record := range r.all() {
		if record.PropertyID == propertyID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memoryPaymentRepository) ListByOwner(_ context.Context, ownerID string) ([]*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []*models.PaymentRecord
	for _, record := range r.all() {
		if record.OwnerID == ownerID && record.Status == models.CollectionStatusSuccess {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memoryPaymentRepository) FailedDisbursements(_ context.Context, limit int) ([]*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// oldest first, the batch retry drains the backlog in arrival order
	var records []*models.PaymentRecord
	for _, id := range r.order {
		record := r.records[id]
		if record.Status == models.CollectionStatusSuccess &&
			record.DisbursementStatus == models.DisbursementStatusFailed && len(records) < limit {
			records = append(records, clone(record))
		}
	}
	return records, nil
}

// memoryPropertyRepository serves fixture properties by id.
type memoryPropertyRepository struct {
	properties map[string]*models.Property
}

func newMemoryPropertyRepository(properties ...*models.Property) *memoryPropertyRepository {
	repo := &memoryPropertyRepository{properties: map[string]*models.Property{}}
	for _, property := range properties {
		repo.properties[property.GetID()] = property
	}
	return repo
}

func (r *memoryPropertyRepository) GetByID(_ context.Context, id string) (*models.Property, error) {
	property, ok := r.properties[id]
	if !ok {
		return nil, repository.ErrPropertyNotFound
	}
	return property, nil
}

func testProperty() *models.Property {
	property := &models.Property{
		Name:          "Greenview Apartments",
		Code:          "PROP-001",
		RentAmount:    decimal.NewNullDecimal(decimal.NewFromInt(25000)),
		Paybill:       "600100",
		AccountNumber: "OWNER-ACC",
		OwnerID:       "owner-1",
	}
	property.ID = "prop-1"
	return property
}

func tenantPrincipal() Principal {
	return Principal{ID: "tenant-1", Name: "Jane Wanjiku", Role: RoleTenant, LinkedPropertyID: "prop-1"}
}

// settledRecord is a payment whose collection leg has already succeeded and
// whose payout has not been attempted yet.
func settledRecord(id string) *models.PaymentRecord {
	record := &models.PaymentRecord{
		TenantUserID:       "tenant-1",
		TenantName:         "Jane Wanjiku",
		PropertyID:         "prop-1",
		PropertyName:       "Greenview Apartments",
		OwnerID:            "owner-1",
		Amount:             decimal.NewNullDecimal(decimal.NewFromInt(25000)),
		PlatformFee:        decimal.NewNullDecimal(decimal.NewFromInt(1250)),
		DisbursementAmount: decimal.NewNullDecimal(decimal.NewFromInt(23750)),
		Currency:           "KES",
		PaymentMethod:      models.PaymentMethodMpesa,
		PhoneNumber:        "254712345678",
		TransactionRef:     "RKT" + id,
		Status:             models.CollectionStatusSuccess,
		OwnerPaybill:       "600100",
		OwnerAccountNumber: "OWNER-ACC",
		DisbursementStatus: models.DisbursementStatusPending,
	}
	record.ID = id
	return record
}
