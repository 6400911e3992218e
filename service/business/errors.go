package business

import "errors"

var (
	ErrInvalidAmount = errors.New("payment amount must be between 1 and 150000")

	ErrTenantNotLinked = errors.New("tenant is not linked to this property")

	ErrNotAuthorized = errors.New("not authorized to access this resource")

	ErrPaymentNotFound = errors.New("specified payment does not exist")

	ErrPropertyNotFound = errors.New("specified property does not exist")

	ErrCollectionNotSettled = errors.New("disbursement requires a successful collection")
)
