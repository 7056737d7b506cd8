package domain

import "time"

// ScannedItem is an order accepted into a scan session. CurrentStatus is the
// status at the moment of the scan, not a live value.
type ScannedItem struct {
	ID            string      `json:"id"`
	CurrentStatus OrderStatus `json:"current_status"`
	ScannedAt     time.Time   `json:"scanned_at"`
}

// Snapshot is the full scanned set at one point in time, newest first.
type Snapshot []ScannedItem

func (s Snapshot) Contains(id string) bool {
	for _, item := range s {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (s Snapshot) IDs() []string {
	ids := make([]string, len(s))
	for i, item := range s {
		ids[i] = item.ID
	}
	return ids
}

type OutcomeKind string

const (
	OutcomeOK       OutcomeKind = "ok"
	OutcomeRejected OutcomeKind = "rejected"
)

// ValidationOutcome is either ok with the order snapshot, or rejected with a reason.
type ValidationOutcome struct {
	Kind   OutcomeKind
	Order  *Order
	Reason string
}

func Accepted(order *Order) ValidationOutcome {
	return ValidationOutcome{Kind: OutcomeOK, Order: order}
}

func Rejected(reason string) ValidationOutcome {
	return ValidationOutcome{Kind: OutcomeRejected, Reason: reason}
}

func (v ValidationOutcome) OK() bool {
	return v.Kind == OutcomeOK && v.Order != nil
}
