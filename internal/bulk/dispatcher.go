// Package bulk applies one action to every order of a scan session.
package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_fashionary/internal/courier"
	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/journal"
	"github.com/fjod/go_fashionary/internal/scan"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/fjod/go_fashionary/internal/bulk")

// Session is the part of a scan session the dispatcher needs.
type Session interface {
	Items() domain.Snapshot
	RemoveItems(ids ...string) scan.View
}

type Result struct {
	DispatchID   string                `json:"dispatch_id"`
	Action       ActionKind            `json:"action"`
	Status       domain.OrderStatus    `json:"status,omitempty"`
	OrderIDs     []string              `json:"order_ids"`
	Artifact     *Artifact             `json:"artifact,omitempty"`
	Consignments []courier.Consignment `json:"consignments,omitempty"`
	CompletedAt  time.Time             `json:"completed_at"`
}

type Dispatcher struct {
	writer  Writer
	journal journal.Journal
	log     *logrus.Entry
	now     func() time.Time
}

// NewDispatcher builds a dispatcher. j may be nil.
func NewDispatcher(w Writer, j journal.Journal, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		writer:  w,
		journal: j,
		log:     log.WithField("component", "bulk_dispatcher"),
		now:     time.Now,
	}
}

// Dispatch runs action over the session's current items. With no items or no
// action it returns ErrEmptyBulkAction and calls nothing. A failed write
// returns ErrBulkActionFailed and leaves the session as it was; a committed
// one removes the dispatched orders. Orders scanned while the write was
// running stay in the session.
func (d *Dispatcher) Dispatch(ctx context.Context, s Session, action Action, operator, sessionID string) (*Result, error) {
	items := s.Items()
	if action.IsZero() || len(items) == 0 {
		return nil, ErrEmptyBulkAction
	}
	ids := items.IDs()

	res := &Result{
		DispatchID: uuid.New().String(),
		Action:     action.Kind,
		Status:     action.Status,
		OrderIDs:   ids,
	}

	ctx, span := tracer.Start(ctx, "bulk.Dispatch", trace.WithAttributes(
		attribute.String("bulk.dispatch_id", res.DispatchID),
		attribute.String("bulk.action", action.String()),
		attribute.Int("bulk.orders", len(ids)),
	))
	defer span.End()

	log := d.log.WithContext(ctx).WithFields(logrus.Fields{
		"dispatch_id": res.DispatchID,
		"action":      action.String(),
		"orders":      len(ids),
		"operator":    operator,
	})

	var err error
	switch action.Kind {
	case ActionMarkStatus:
		err = d.writer.UpdateStatus(ctx, ids, action.Status, operator)
	case ActionPrintInvoices:
		res.Artifact, err = d.writer.PrintInvoices(ctx, ids)
	case ActionPrintStickers:
		res.Artifact, err = d.writer.PrintStickers(ctx, ids)
	case ActionExportCSV:
		res.Artifact, err = d.writer.ExportCSV(ctx, ids)
	case ActionSendToCourier:
		res.Consignments, err = d.writer.SendToCourier(ctx, ids, operator)
	default:
		return nil, fmt.Errorf("%q: %w", action.Kind, ErrUnknownAction)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk action failed")
		log.WithError(err).Warn("bulk action failed, scanned orders kept")
		return nil, fmt.Errorf("%w: %s: %w", ErrBulkActionFailed, action, err)
	}

	s.RemoveItems(ids...)
	res.CompletedAt = d.now()
	log.Info("bulk action committed")

	d.record(ctx, res, operator, sessionID, log)
	return res, nil
}

func (d *Dispatcher) record(ctx context.Context, res *Result, operator, sessionID string, log *logrus.Entry) {
	if d.journal == nil {
		return
	}
	e := journal.Entry{
		DispatchID:  res.DispatchID,
		Action:      string(res.Action),
		Status:      string(res.Status),
		OrderIDs:    res.OrderIDs,
		Operator:    operator,
		SessionID:   sessionID,
		CompletedAt: res.CompletedAt,
	}
	if res.Artifact != nil {
		e.Artifact = res.Artifact.Name
	}
	for _, c := range res.Consignments {
		e.TrackingCodes = append(e.TrackingCodes, c.TrackingCode)
	}

	// the action is already committed, a journal outage must not fail it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.journal.Record(ctx, e); err != nil {
		log.WithError(err).Error("failed to journal bulk action")
	}
}
