package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrDuplicateReference = errors.New("payment reference already exists for tenant")
	ErrInvalidTransition  = errors.New("invalid payment status transition")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantInactive     = errors.New("tenant is not active")
	ErrTenantSuspended    = errors.New("tenant is suspended")
	ErrPlanInactive       = errors.New("plan is not available")
	ErrUnsupportedGateway = errors.New("unsupported payment gateway")
	ErrIgnoredEvent       = errors.New("webhook event ignored")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrRateLimited        = errors.New("too many attempts")
	ErrCodeAlreadyUsed    = errors.New("activation code already used")
	ErrCodeExpired        = errors.New("activation code expired")
	ErrCodeNotFound       = errors.New("activation code not found")
	ErrDeliveryClaimed    = errors.New("invite delivery is claimed elsewhere")
)

// GatewayError is returned by payment gateway adapters. Transient errors
// (network, timeout, 429, 5xx) may be retried with the same call; the rest may not.
type GatewayError struct {
	Gateway   string
	Op        string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s: %s gateway error: %v", e.Gateway, e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsTransientGatewayError reports whether err carries a retryable GatewayError.
func IsTransientGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}

// RedemptionReason tells the caller why an activation code was refused.
type RedemptionReason string

const (
	RedemptionAlreadyUsed RedemptionReason = "already_used"
	RedemptionExpired     RedemptionReason = "expired"
	RedemptionNotFound    RedemptionReason = "not_found"
)

// RedemptionError matches ErrCodeAlreadyUsed, ErrCodeExpired or ErrCodeNotFound via errors.Is.
type RedemptionError struct {
	Reason RedemptionReason
}

func (e *RedemptionError) Error() string { return "redeem activation code: " + string(e.Reason) }

func (e *RedemptionError) Is(target error) bool {
	switch e.Reason {
	case RedemptionAlreadyUsed:
		return target == ErrCodeAlreadyUsed
	case RedemptionExpired:
		return target == ErrCodeExpired
	case RedemptionNotFound:
		return target == ErrCodeNotFound
	}
	return false
}
