package domain

import "errors"

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// Error is a classified booking failure. Two errors match with errors.Is when
// their codes are equal, so wrapped sentinels keep their identity.
type Error struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInvalidTimeFormat = newError(KindValidation, "invalid_time_format", "invalid time format")
	ErrInvalidTimeRange  = newError(KindValidation, "invalid_time_range", "start time must be before end time")
	ErrInvalidDate       = newError(KindValidation, "invalid_date", "invalid date")
	ErrInvalidDuration   = newError(KindValidation, "invalid_duration", "invalid slot duration")
	ErrInvalidStatus     = newError(KindValidation, "invalid_status", "invalid status")
	ErrInvalidInput      = newError(KindValidation, "invalid_input", "invalid input")
	ErrClientRequired    = newError(KindValidation, "client_required", "client id is required")
	ErrPastDate          = newError(KindValidation, "past_date", "cannot book a date in the past")

	ErrNotFound          = newError(KindNotFound, "not_found", "not found")
	ErrClientNotFound    = newError(KindNotFound, "client_not_found", "client not found")
	ErrProviderNotFound  = newError(KindNotFound, "provider_not_found", "provider not found")
	ErrServiceNotFound   = newError(KindNotFound, "service_not_found", "service not found")
	ErrSlotNotConfigured = newError(KindNotFound, "slot_not_configured", "no slot is configured for this time")

	ErrSlotUnavailable       = newError(KindConflict, "slot_unavailable", "slot is not available")
	ErrNoSlotsGenerated      = newError(KindConflict, "no_slots_generated", "no new slots generated; the window is already covered")
	ErrTimeConflict          = newError(KindConflict, "time_conflict", "staff already has an appointment at this time")
	ErrAlreadyCancelled      = newError(KindConflict, "already_cancelled", "appointment is already cancelled")
	ErrCannotCancelCompleted = newError(KindConflict, "cannot_cancel_completed", "a completed appointment cannot be cancelled")
	ErrAppointmentInactive   = newError(KindConflict, "appointment_inactive", "a no-show appointment cannot be rescheduled")

	ErrForbidden = newError(KindAuthorization, "forbidden", "not allowed to act on this record")
)

// KindOf reports the classification of err, or KindUnknown for infrastructure
// failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
