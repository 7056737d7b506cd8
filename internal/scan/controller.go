// Package scan runs scan sessions: it turns raw barcode input into history
// mutations and a short-lived status signal for the operator.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/history"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCooldown          = 500 * time.Millisecond
	DefaultValidationTimeout = 5 * time.Second
)

var (
	ErrDuplicateScan      = errors.New("order already scanned")
	ErrValidationRejected = errors.New("scan rejected")
	ErrSessionClosed      = errors.New("scan session closed")
	ErrBlankScan          = errors.New("blank scan ignored")
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSuccess   Status = "success"
	StatusDuplicate Status = "duplicate"
	StatusError     Status = "error"
)

// Signal is what the scan screen shows next to the input box.
type Signal struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

// Validator resolves a scanned code to an order.
type Validator interface {
	ValidateScannedOrder(ctx context.Context, code string) (domain.ValidationOutcome, error)
}

type Options struct {
	Cooldown          time.Duration
	ValidationTimeout time.Duration
	// MaxHistory caps the undo history, 0 keeps everything.
	MaxHistory int
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.ValidationTimeout <= 0 {
		o.ValidationTimeout = DefaultValidationTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// View is a consistent read of a session.
type View struct {
	Items   domain.Snapshot `json:"items"`
	Signal  Signal          `json:"signal"`
	CanUndo bool            `json:"can_undo"`
	CanRedo bool            `json:"can_redo"`
	Cursor  int             `json:"cursor"`
	Entries int             `json:"entries"`
}

// Controller owns one session's history. History mutations are serialized;
// validation runs outside the lock, so concurrent scans apply in the order
// their lookups complete.
type Controller struct {
	validator Validator
	opts      Options
	log       *logrus.Entry

	mu      sync.Mutex
	history history.History
	signal  Signal
	gen     uint64
	timer   *time.Timer
	closed  bool
}

func NewController(v Validator, opts Options, log *logrus.Entry) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		validator: v,
		opts:      opts,
		log:       log,
		history:   history.New(opts.MaxHistory),
		signal:    Signal{Status: StatusIdle},
	}
}

// SubmitScan handles one raw scan. Blank input returns ErrBlankScan with the
// signal as it is. A duplicate returns ErrDuplicateScan and a rejection
// returns ErrValidationRejected; both also set the matching signal.
func (c *Controller) SubmitScan(ctx context.Context, raw string) (Signal, error) {
	code := strings.TrimSpace(raw)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Signal{}, ErrSessionClosed
	}
	if code == "" {
		sig := c.signal
		c.mu.Unlock()
		return sig, ErrBlankScan
	}
	if c.history.Contains(code) {
		sig := c.setSignalLocked(StatusDuplicate, code, fmt.Sprintf("Order %s already scanned.", code))
		c.mu.Unlock()
		return sig, fmt.Errorf("%s: %w", code, ErrDuplicateScan)
	}
	c.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, c.opts.ValidationTimeout)
	outcome, err := c.validator.ValidateScannedOrder(vctx, code)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Signal{}, ErrSessionClosed
	}

	switch {
	case err != nil:
		c.log.WithError(err).WithField("code", code).Warn("order validation failed")
		sig := c.setSignalLocked(StatusError, code, fmt.Sprintf("Could not validate %s, try again.", code))
		return sig, fmt.Errorf("validate %s: %w", code, err)
	case !outcome.OK():
		sig := c.setSignalLocked(StatusError, code, outcome.Reason)
		return sig, fmt.Errorf("%w: %s", ErrValidationRejected, outcome.Reason)
	}

	id := outcome.Order.ID
	// another scan of the same order may have landed while we were validating
	if c.history.Contains(id) {
		sig := c.setSignalLocked(StatusDuplicate, id, fmt.Sprintf("Order %s already scanned.", id))
		return sig, fmt.Errorf("%s: %w", id, ErrDuplicateScan)
	}

	c.history = c.history.AddItem(domain.ScannedItem{
		ID:            id,
		CurrentStatus: outcome.Order.Status,
		ScannedAt:     c.opts.Now(),
	})
	return c.setSignalLocked(StatusSuccess, id, fmt.Sprintf("Order %s added.", id)), nil
}

// setSignalLocked replaces the signal and schedules its reset to idle. A newer
// signal supersedes the pending reset of an older one.
func (c *Controller) setSignalLocked(status Status, orderID, msg string) Signal {
	c.signal = Signal{Status: status, Message: msg, OrderID: orderID}
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.opts.Cooldown, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen && !c.closed {
			c.signal = Signal{Status: StatusIdle}
		}
	})
	return c.signal
}

func (c *Controller) Undo() View {
	return c.mutate(func(h history.History) history.History { return h.Undo() })
}

func (c *Controller) Redo() View {
	return c.mutate(func(h history.History) history.History { return h.Redo() })
}

func (c *Controller) RemoveItem(id string) View {
	return c.mutate(func(h history.History) history.History { return h.RemoveItem(id) })
}

// RemoveItems drops the given orders in a single undoable step.
func (c *Controller) RemoveItems(ids ...string) View {
	return c.mutate(func(h history.History) history.History { return h.RemoveItems(ids...) })
}

func (c *Controller) Clear() View {
	return c.mutate(func(h history.History) history.History { return h.Clear() })
}

func (c *Controller) mutate(fn func(history.History) history.History) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.history = fn(c.history)
	}
	return c.viewLocked()
}

// Items returns a copy of the current snapshot.
func (c *Controller) Items() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Current()
}

func (c *Controller) Signal() Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	items := c.history.Current()
	if items == nil {
		items = domain.Snapshot{}
	}
	return View{
		Items:   items,
		Signal:  c.signal,
		CanUndo: c.history.CanUndo(),
		CanRedo: c.history.CanRedo(),
		Cursor:  c.history.Cursor(),
		Entries: c.history.Len(),
	}
}

// Close stops the pending signal reset. Scans still in flight are dropped
// when they complete.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
