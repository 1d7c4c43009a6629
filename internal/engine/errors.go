package engine

import "errors"

// Error taxonomy (spec §7) — a small set of exported sentinels, matching
// the teacher's per-package sentinel-error style (internal/orders/service.go's
// ErrOrderNotFound, ErrInvalidOrder, ErrOrderNotCancellable) rather than a
// generic error-code string.
var (
	ErrDoctorNotFound         = errors.New("engine: doctor not found")
	ErrDoctorInactive         = errors.New("engine: doctor inactive")
	ErrTokenNotFound          = errors.New("engine: token not found")
	ErrAlreadyCancelled       = errors.New("engine: token already cancelled")
	ErrCannotCancelCompleted  = errors.New("engine: cannot cancel a completed token")
	ErrInvalidStatusForAction = errors.New("engine: token is not in a status valid for this action")
)
