package coreapi

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed means the provider rejected the client
	// credentials during token acquisition.
	ErrAuthenticationFailed = errors.New("mpesa: failed to generate access token")

	// ErrOperatorCredentialsMissing means the business-to-business operator
	// credentials required for disbursement are not configured.
	ErrOperatorCredentialsMissing = errors.New("mpesa: B2B requires initiator name and security credential to be configured")
)

// RequestError carries the provider's human readable reason for a
// synchronous rejection of an initiation request.
type RequestError struct {
	Operation string
	Message   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("mpesa: %s rejected: %s", e.Operation, e.Message)
}
