package recovery

import "fmt"

// State is the phase of one recovery attempt.
//
//	STARTED -> REPORTS_COLLECTED -> AGREED -> COMMITTED -> FINALIZED
//	   \______________\_______________\__________\--------> FAILED
type State int

const (
	Started State = iota
	ReportsCollected
	Agreed
	Committed
	Finalized
	Failed
)

func (s State) String() string {
	switch s {
	case Started:
		return "STARTED"
	case ReportsCollected:
		return "REPORTS_COLLECTED"
	case Agreed:
		return "AGREED"
	case Committed:
		return "COMMITTED"
	case Finalized:
		return "FINALIZED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for c := Started; c <= Failed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown recovery state %q", b)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Finalized || s == Failed
}

// Trigger says why a recovery attempt started.
type Trigger string

const (
	// TriggerCloseConflict is a session orphaned by a rejected close.
	TriggerCloseConflict Trigger = "close_conflict"
	// TriggerHardExpiry is a lease past its hard limit.
	TriggerHardExpiry Trigger = "hard_expiry"
	// TriggerSoftExpiry is another writer asking for a file whose lease is
	// past its soft limit.
	TriggerSoftExpiry Trigger = "soft_expiry"
	// TriggerAdmin is an explicit administrative request.
	TriggerAdmin Trigger = "admin"
	// TriggerReplicaReport is a storage node reporting a finalized replica
	// of an abandoned block.
	TriggerReplicaReport Trigger = "replica_report"
)
