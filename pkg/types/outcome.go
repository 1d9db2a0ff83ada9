package types

import "time"

// OutcomeKind classifies the result of a reconciliation run.
type OutcomeKind string

const (
	OutcomeNoOp    OutcomeKind = "no_op"
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome describes what a reconciliation run did. It is derived state, only
// persisted to the outcome history for later inspection.
type Outcome struct {
	Timestamp time.Time   `json:"timestamp"`
	Kind      OutcomeKind `json:"kind"`
	// FromReserve/ToReserve are only meaningful when Kind is OutcomeUpdated.
	FromReserve int `json:"fromReserve,omitempty"`
	ToReserve   int `json:"toReserve,omitempty"`
	// Reason carries the skip reason or the failure message.
	Reason string `json:"reason,omitempty"`
	// Err is the underlying failure; not serialized, Reason carries the text.
	Err error `json:"-"`
}

// NoOp returns an outcome for a run where the device already matched.
func NoOp(now time.Time) Outcome {
	return Outcome{Timestamp: now, Kind: OutcomeNoOp}
}

// Updated returns an outcome for a run that pushed a new reserve.
func Updated(now time.Time, from, to int) Outcome {
	return Outcome{Timestamp: now, Kind: OutcomeUpdated, FromReserve: from, ToReserve: to}
}

// Skipped returns an outcome for a run that intentionally did nothing.
func Skipped(now time.Time, reason string) Outcome {
	return Outcome{Timestamp: now, Kind: OutcomeSkipped, Reason: reason}
}

// Failed returns an outcome for a run that hit an error.
func Failed(now time.Time, reason string, err error) Outcome {
	return Outcome{Timestamp: now, Kind: OutcomeFailed, Reason: reason, Err: err}
}
