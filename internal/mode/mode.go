// Package mode holds the frame's runtime mode: battery (wake, check, sleep)
// or continuous (stay awake and keep receiving).
package mode

import "sync/atomic"

// Mode is the frame's runtime mode.
type Mode int32

const (
	// Battery runs one wake cycle and powers off.
	Battery Mode = iota
	// Continuous keeps the frame awake, receiving commands until stopped.
	Continuous
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Battery:
		return "battery"
	case Continuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// State is the shared runtime mode. The only transition is battery to
// continuous; nothing switches back within a process lifetime.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type State struct {
	mode atomic.Int32
}

// New returns a State starting in the given mode.
func New(initial Mode) *State {
	s := &State{}
	s.mode.Store(int32(initial))
	return s
}

// Mode returns the current mode.
func (s *State) Mode() Mode {
	return Mode(s.mode.Load())
}

// IsContinuous reports whether the frame should stay awake.
func (s *State) IsContinuous() bool {
	return s.Mode() == Continuous
}

// EnterContinuous switches to continuous mode. It reports whether the mode
// changed; repeated calls are no-ops.
func (s *State) EnterContinuous() (changed bool) {
	return s.mode.CompareAndSwap(int32(Battery), int32(Continuous))
}
