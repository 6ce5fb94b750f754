package usecase

import "errors"

var (
	ErrSlotUnavailable     = errors.New("slot is no longer available")
	ErrSlotInPast          = errors.New("cannot book a slot in the past")
	ErrInvalidPrice        = errors.New("price must be greater than zero")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrBookingCancelled    = errors.New("booking was cancelled")
	ErrBookingExpired      = errors.New("booking hold expired")
	ErrBookingAlreadyFinal = errors.New("booking is already expired or cancelled")
	ErrMissingSessionID    = errors.New("session id is required")
	ErrPaymentProvider     = errors.New("payment provider request failed")
	ErrMissingSignature    = errors.New("missing payment signature")
	ErrInvalidSignature    = errors.New("invalid payment signature")
	ErrMissingMetadata     = errors.New("payment event is missing booking metadata")
	ErrNothingToFulfill    = errors.New("booking has nothing left to fulfill")
	ErrInvalidCredentials  = errors.New("invalid email or password")
)
