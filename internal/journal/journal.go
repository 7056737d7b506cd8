// Package journal keeps a record of every committed bulk action.
package journal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrDispatchNotFound = errors.New("dispatch not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Entry describes one committed bulk action.
type Entry struct {
	DispatchID    string    `bson:"_id" json:"dispatch_id"`
	Action        string    `bson:"action" json:"action"`
	Status        string    `bson:"status,omitempty" json:"status,omitempty"`
	OrderIDs      []string  `bson:"order_ids" json:"order_ids"`
	Operator      string    `bson:"operator" json:"operator"`
	SessionID     string    `bson:"session_id,omitempty" json:"session_id,omitempty"`
	Artifact      string    `bson:"artifact,omitempty" json:"artifact,omitempty"`
	TrackingCodes []string  `bson:"tracking_codes,omitempty" json:"tracking_codes,omitempty"`
	CompletedAt   time.Time `bson:"completed_at" json:"completed_at"`
}

type Journal interface {
	Record(ctx context.Context, e Entry) error
	// List returns the newest entries first.
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, dispatchID string) (*Entry, error)
}

func normaliseLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// MemoryJournal is used when no MongoDB is configured. It forgets everything
// on restart.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Record(_ context.Context, e Entry) error {
	e.OrderIDs = append([]string(nil), e.OrderIDs...)
	e.TrackingCodes = append([]string(nil), e.TrackingCodes...)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *MemoryJournal) List(_ context.Context, limit int) ([]Entry, error) {
	limit = normaliseLimit(limit)

	j.mu.RLock()
	out := append([]Entry(nil), j.entries...)
	j.mu.RUnlock()

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CompletedAt.After(out[b].CompletedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *MemoryJournal) Get(_ context.Context, dispatchID string) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := range j.entries {
		if j.entries[i].DispatchID == dispatchID {
			e := j.entries[i]
			return &e, nil
		}
	}
	return nil, ErrDispatchNotFound
}
