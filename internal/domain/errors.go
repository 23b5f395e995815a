package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the resolver, orchestrator, ledger and HTTP layer.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedRegion = errors.New("unsupported region")
	ErrProviderRejected  = errors.New("provider rejected")
	ErrInfrastructure    = errors.New("infrastructure error")
	ErrTimeout           = errors.New("timed out waiting for provider")

	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("state conflict")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotCancellable    = errors.New("transaction can no longer be cancelled")
)

var (
	ErrInvalidPhoneFormat = fmt.Errorf("%w: invalid phone format", ErrInvalidInput)
	ErrProviderNotFound   = fmt.Errorf("provider %w", ErrNotFound)
)
