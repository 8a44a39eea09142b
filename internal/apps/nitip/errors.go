package nitip

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every input error; nothing was stored.
var ErrValidation = errors.New("invalid deposit")

var (
	ErrInvalidName     = fmt.Errorf("%w: owner name must be 2 to 100 characters", ErrValidation)
	ErrInvalidPhone    = fmt.Errorf("%w: owner phone must be an Indonesian mobile number", ErrValidation)
	ErrInvalidSlot     = fmt.Errorf("%w: slot must be between 1 and %d", ErrValidation, TotalSlots)
	ErrInvalidPhotoURL = fmt.Errorf("%w: photo url must be an absolute http(s) url", ErrValidation)
)

var (
	ErrSlotOccupied    = errors.New("slot is already occupied")
	ErrCodeTaken       = errors.New("pickup code is held by an active deposit")
	ErrCodeExhausted   = errors.New("could not allocate a unique pickup code")
	ErrDepositNotFound = errors.New("deposit not found")
	ErrAlreadyPickedUp = errors.New("item already collected")
)
