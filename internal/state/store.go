package state

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/five82/battdash/internal/config"
	"github.com/five82/battdash/internal/device"
)

// ConnState is the lifecycle of the gateway connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Open
	Restarting
)

func (c ConnState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Restarting:
		return "restarting"
	default:
		return "disconnected"
	}
}

// Field is a registered setting together with the last value the controller reported.
type Field struct {
	config.Field
	// Text is the label shown next to a slider; Value is the control's value.
	// Plain fields only carry a Value.
	Text      string
	Value     string
	HasValue  bool
	UpdatedAt time.Time
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Conn                ConnState
	Fields              []Field
	Batteries           []device.BatteryStatus
	Switches            []device.ControlSwitch
	HasStatus           bool
	RestartNotice       string
	LastUpdated         time.Time
	LastError           error
	Attempts            int // connection attempts since start
	ConsecutiveFailures int
	IgnoredKeys         int // field keys with no registered field
	StatusFrames        int // status frames applied since start
}

// IsOffline returns true when the controller has been unreachable for multiple attempts.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Restarting reports whether a reset notice is being shown.
func (s Snapshot) Restarting() bool {
	return s.RestartNotice != ""
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
	index    map[string]int
}

// NewStore returns a store that accepts values for the given field registry only.
func NewStore(fields []config.Field) *Store {
	s := &Store{index: make(map[string]int, len(fields))}
	s.snapshot.Fields = make([]Field, len(fields))
	for i, f := range fields {
		s.snapshot.Fields[i] = Field{Field: f}
		s.index[f.ID] = i
	}
	return s
}

// SetConnection records a lifecycle transition. A transition to Disconnected
// with a non-nil err counts as a failure; reaching Open clears failures.
func (s *Store) SetConnection(conn ConnState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Conn = conn
	switch conn {
	case Connecting:
		s.snapshot.Attempts++
	case Open:
		s.snapshot.LastError = nil
		s.snapshot.ConsecutiveFailures = 0
	case Disconnected:
		if err != nil {
			s.snapshot.LastError = err
			s.snapshot.ConsecutiveFailures++
		}
	}
}

// ApplyFields writes controller values into registered fields. Keys without a
// registered field are ignored and returned.
func (s *Store) ApplyFields(values map[string]string) (ignored []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, value := range values {
		i, ok := s.index[key]
		if !ok {
			ignored = append(ignored, key)
			continue
		}
		f := &s.snapshot.Fields[i]
		if f.IsSlider() {
			f.Text = value
		}
		f.Value = value
		f.HasValue = true
		f.UpdatedAt = now
	}
	s.snapshot.IgnoredKeys += len(ignored)
	s.snapshot.LastUpdated = now
	slices.Sort(ignored)
	return ignored
}

// ApplyStatus replaces the battery and switch lists wholesale.
func (s *Store) ApplyStatus(status device.StatusSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Batteries = slices.Clone(status.Batteries)
	s.snapshot.Switches = slices.Clone(status.Switches)
	s.snapshot.HasStatus = true
	s.snapshot.StatusFrames++
	s.snapshot.LastUpdated = time.Now()
}

// ShowRestartNotice marks the controller as restarting.
func (s *Store) ShowRestartNotice(notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.RestartNotice = notice
	s.snapshot.Conn = Restarting
}

// Reset drops everything learned from the controller, keeping the field
// registry and connection counters.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.snapshot.Fields {
		s.snapshot.Fields[i] = Field{Field: s.snapshot.Fields[i].Field}
	}
	s.snapshot.Batteries = nil
	s.snapshot.Switches = nil
	s.snapshot.HasStatus = false
	s.snapshot.RestartNotice = ""
	s.snapshot.LastUpdated = time.Time{}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Fields = slices.Clone(s.snapshot.Fields)
	snap.Batteries = slices.Clone(s.snapshot.Batteries)
	snap.Switches = slices.Clone(s.snapshot.Switches)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}
