package models

import "time"

// TransferState is the lifecycle state of one transfer as tracked by the
// transfer manager. The daemon backend has its own internal states; these
// are the ones the manager reasons about.
type TransferState string

const (
	TransferRequested    TransferState = "requested"
	TransferGateChecking TransferState = "gate_checking"
	TransferDenied       TransferState = "denied"
	TransferAuthorized   TransferState = "authorized"
	TransferActive       TransferState = "active"
	TransferPaused       TransferState = "paused"
	TransferSeeding      TransferState = "seeding"
	TransferCompleted    TransferState = "completed"
	TransferFailed       TransferState = "failed"
	TransferRemoved      TransferState = "removed"
)

// transferTransitions lists the legal state transitions. authorized->active
// is the only transition that hands the locator to a daemon.
var transferTransitions = map[TransferState][]TransferState{
	TransferRequested:    {TransferGateChecking},
	TransferGateChecking: {TransferAuthorized, TransferDenied},
	TransferAuthorized:   {TransferActive, TransferFailed},
	TransferActive:       {TransferPaused, TransferSeeding, TransferCompleted, TransferFailed, TransferRemoved},
	TransferPaused:       {TransferActive, TransferSeeding, TransferRemoved},
	TransferSeeding:      {TransferPaused, TransferCompleted, TransferRemoved},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to TransferState) bool {
	for _, next := range transferTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a state has no outgoing transitions.
func (s TransferState) Terminal() bool {
	return len(transferTransitions[s]) == 0
}

// Transfer is the manager's record of one download. HandleID is the opaque
// identifier owned by the daemon backend that created it; the manager never
// embeds client-internal fields beyond that reference.
type Transfer struct {
	ID           string        `json:"id"`
	ClientName   string        `json:"client"`
	HandleID     string        `json:"handleId,omitempty"`
	Name         string        `json:"name"`
	Locator      string        `json:"locator"`
	SavePath     string        `json:"savePath"`
	State        TransferState `json:"state"`
	Progress     float64       `json:"progress"`
	Ratio        float64       `json:"ratio"`
	Error        string        `json:"error,omitempty"`
	PausedByGate bool          `json:"pausedByGate,omitempty"`
	AddedAt      time.Time     `json:"addedAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}
