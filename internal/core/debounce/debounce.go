// Package debounce stabilises a noisy per-frame presence signal.
package debounce

// Standardwerte für die Anzahl aufeinanderfolgender Frames
const (
	DefaultValidThreshold   = 3
	DefaultInvalidThreshold = 3
)

// State is a snapshot of a Machine. At most one of the two counters is
// non-zero at any time.
type State struct {
	ConsecutiveValid   int  `json:"consecutive_valid"`
	ConsecutiveInvalid int  `json:"consecutive_invalid"`
	Stable             bool `json:"stable"`
}

// Machine applies hysteresis to a boolean signal: Stable only flips after a
// run of like signals reaches the corresponding threshold.
//
// A Machine is not safe for concurrent use; the pipeline mutates it from
// its worker goroutine only.
type Machine struct {
	validThreshold   int
	invalidThreshold int
	state            State
}

// New creates a Machine. Thresholds below 1 fall back to the defaults.
func New(validThreshold, invalidThreshold int) *Machine {
	if validThreshold < 1 {
		validThreshold = DefaultValidThreshold
	}
	if invalidThreshold < 1 {
		invalidThreshold = DefaultInvalidThreshold
	}
	return &Machine{validThreshold: validThreshold, invalidThreshold: invalidThreshold}
}

// Update feeds one raw signal and returns the stabilised value.
func (m *Machine) Update(present bool) bool {
	if present {
		m.state.ConsecutiveValid++
		m.state.ConsecutiveInvalid = 0
		if m.state.ConsecutiveValid >= m.validThreshold {
			m.state.Stable = true
		}
	} else {
		m.state.ConsecutiveInvalid++
		m.state.ConsecutiveValid = 0
		if m.state.ConsecutiveInvalid >= m.invalidThreshold {
			m.state.Stable = false
		}
	}
	return m.state.Stable
}

// Stable returns the current stabilised value.
func (m *Machine) Stable() bool { return m.state.Stable }

// State returns a copy of the internal state.
func (m *Machine) State() State { return m.state }

// Reset returns the machine to its initial, not stable state.
func (m *Machine) Reset() { m.state = State{} }
