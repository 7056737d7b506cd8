package bulk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_fashionary/internal/domain"
)

var (
	ErrEmptyBulkAction  = errors.New("nothing to dispatch")
	ErrBulkActionFailed = errors.New("bulk action failed")
	ErrUnknownAction    = errors.New("unknown bulk action")
	ErrInvalidStatus    = errors.New("invalid target status")
)

type ActionKind string

const (
	ActionMarkStatus    ActionKind = "mark-status"
	ActionPrintInvoices ActionKind = "print-invoices"
	ActionPrintStickers ActionKind = "print-stickers"
	ActionExportCSV     ActionKind = "export-csv"
	ActionSendToCourier ActionKind = "send-to-courier"
)

// Action is what the operator picked from the bulk menu. The zero Action
// means nothing was picked.
type Action struct {
	Kind ActionKind
	// Status is the target of ActionMarkStatus.
	Status domain.OrderStatus
}

// ParseAction builds an Action from request input. An empty kind yields the
// zero Action, which dispatches as a no-op.
func ParseAction(kind, status string) (Action, error) {
	k := ActionKind(strings.TrimSpace(kind))
	switch k {
	case "":
		return Action{}, nil
	case ActionPrintInvoices, ActionPrintStickers, ActionExportCSV, ActionSendToCourier:
		return Action{Kind: k}, nil
	case ActionMarkStatus:
		s := domain.OrderStatus(strings.TrimSpace(status))
		if !s.Valid() {
			return Action{}, fmt.Errorf("%q: %w", status, ErrInvalidStatus)
		}
		return Action{Kind: k, Status: s}, nil
	}
	return Action{}, fmt.Errorf("%q: %w", kind, ErrUnknownAction)
}

func (a Action) IsZero() bool {
	return a.Kind == ""
}

func (a Action) String() string {
	if a.Kind == ActionMarkStatus {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Status)
	}
	return string(a.Kind)
}
