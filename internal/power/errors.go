package power

import "errors"

// Domain-specific errors for power manager operations.
var (
	// ErrPowerUnavailable is returned when the power manager cannot be reached
	// or answers with something unusable. Every peripheral failure wraps it.
	ErrPowerUnavailable = errors.New("power: power manager unavailable")

	// ErrMalformedReply is wrapped alongside ErrPowerUnavailable when a reply
	// arrived but could not be parsed or reported an error.
	ErrMalformedReply = errors.New("power: malformed reply")

	// ErrAlarmNotConfirmed is returned when the alarm was written but the
	// power manager does not report it as enabled.
	ErrAlarmNotConfirmed = errors.New("power: alarm not confirmed")

	// ErrInvalidAlarm is returned for an AlarmSpec that cannot be sent.
	ErrInvalidAlarm = errors.New("power: invalid alarm")

	// ErrShutdownFailed is returned when the OS shutdown command fails.
	ErrShutdownFailed = errors.New("power: shutdown command failed")
)
