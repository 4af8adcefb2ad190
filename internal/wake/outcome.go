package wake

import "errors"

// ErrChannelUnavailable is returned when the message channel cannot be opened.
var ErrChannelUnavailable = errors.New("wake: message channel unavailable")

// Outcome is how a wake cycle ended.
type Outcome string

const (
	// ShutdownIssued: alarm confirmed, OS shutdown command accepted.
	ShutdownIssued Outcome = "shutdown-issued"
	// SwitchedToContinuous: a command asked the frame to stay awake.
	SwitchedToContinuous Outcome = "switched-to-continuous"
	// AbortedNoAlarm: the next wake could not be confirmed; the device is
	// left powered.
	AbortedNoAlarm Outcome = "aborted-no-alarm"
	// AlarmSet: alarm confirmed, shutdown disabled by configuration.
	AlarmSet Outcome = "alarm-set"
	// AbortedChannelUnavailable: the broker could not be reached.
	AbortedChannelUnavailable Outcome = "aborted-channel-unavailable"
	// Interrupted: a termination signal arrived during the cycle.
	Interrupted Outcome = "interrupted"
	// ShutdownFailed: alarm confirmed, OS shutdown command failed.
	ShutdownFailed Outcome = "shutdown-failed"

	// ShutdownPending labels the cycle count pushed just before the shutdown
	// command runs. RunCycle never returns it; a shutdown that then fails is
	// counted again as ShutdownFailed.
	ShutdownPending Outcome = "shutdown-pending"
)

// String implements fmt.Stringer.
func (o Outcome) String() string { return string(o) }

// PoweredOff reports whether the device is expected to lose power.
func (o Outcome) PoweredOff() bool { return o == ShutdownIssued }
