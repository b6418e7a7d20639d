// Package state derives order states from the item ledger and guards the
// operations each state allows.
package state

import (
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/google/uuid"
)

var allStates = map[string]bool{
	models.StateNew:           true,
	models.StateProcessing:    true,
	models.StateComplete:      true,
	models.StateClosed:        true,
	models.StateCanceled:      true,
	models.StateHolded:        true,
	models.StatePaymentReview: true,
}

// frozen states never change automatically.
var frozen = map[string]bool{
	models.StateCanceled:      true,
	models.StateClosed:        true,
	models.StateHolded:        true,
	models.StatePaymentReview: true,
}

// IsState reports whether s is a known order state.
func IsState(s string) bool { return allStates[s] }

// Evaluate returns the state the ledger implies for the order.
func Evaluate(o *models.Order) (string, bool) {
	if frozen[o.State] {
		return o.State, false
	}

	touched := false
	allInvoiced, allShipped := true, true
	for i := range o.Items {
		it := &o.Items[i]
		if it.QtyInvoiced.IsPositive() || it.QtyShipped.IsPositive() {
			touched = true
		}
		if ledger.QtyToInvoice(it).IsPositive() {
			allInvoiced = false
		}
		if ledger.QtyToShip(it).IsPositive() {
			allShipped = false
		}
	}

	next := o.State
	if next == models.StateNew && touched {
		next = models.StateProcessing
	}
	if (next == models.StateNew || next == models.StateProcessing) && touched && allInvoiced && allShipped {
		next = models.StateComplete
	}
	if next == models.StateComplete && fullyRefunded(o) {
		next = models.StateClosed
	}
	return next, next != o.State
}

func fullyRefunded(o *models.Order) bool {
	invoiced := o.BaseInvoiced.GrandTotal
	return invoiced.IsPositive() && o.BaseRefunded.GrandTotal.GreaterThanOrEqual(invoiced)
}

func notAllowed(o *models.Order, operation string) *apperrors.Error {
	return apperrors.ErrInvalidStateTransition.
		Withf("%s not allowed in state %s", operation, o.State).
		WithDetail("state", o.State).
		WithDetail("operation", operation)
}

var documentBlocked = map[string]bool{
	models.StateHolded:        true,
	models.StateCanceled:      true,
	models.StatePaymentReview: true,
	models.StateClosed:        true,
}

// CanInvoice checks whether the order state accepts a new invoice.
func CanInvoice(o *models.Order) error {
	if documentBlocked[o.State] {
		return notAllowed(o, "invoice")
	}
	return nil
}

// CanShip checks whether the order state accepts a new shipment.
func CanShip(o *models.Order) error {
	if documentBlocked[o.State] || o.IsVirtual {
		return notAllowed(o, "shipment")
	}
	return nil
}

// CanCreditmemo checks whether the order state accepts a refund.
func CanCreditmemo(o *models.Order) error {
	if o.State != models.StateProcessing && o.State != models.StateComplete {
		return notAllowed(o, "creditmemo")
	}
	return nil
}

// CanCancel allows cancellation only before anything was invoiced or shipped.
func CanCancel(o *models.Order) error {
	switch o.State {
	case models.StateNew, models.StateProcessing, models.StatePaymentReview:
	default:
		return notAllowed(o, "cancel")
	}
	for i := range o.Items {
		if o.Items[i].QtyInvoiced.IsPositive() || o.Items[i].QtyShipped.IsPositive() {
			return notAllowed(o, "cancel").WithDetail("item_id", o.Items[i].ID.String())
		}
	}
	return nil
}

func CanHold(o *models.Order) error {
	if o.State != models.StateNew && o.State != models.StateProcessing {
		return notAllowed(o, "hold")
	}
	return nil
}

func CanUnhold(o *models.Order) error {
	if o.State != models.StateHolded {
		return notAllowed(o, "unhold")
	}
	return nil
}

// Machine applies transitions and records them in the status history.
type Machine struct {
	registry *Registry
	now      func() time.Time
}

func NewMachine(registry *Registry) *Machine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Machine{registry: registry, now: time.Now}
}

// Registry returns the status registry used by the machine.
func (m *Machine) Registry() *Registry { return m.registry }

// HistoryEntry is the comment and flags attached to a history row.
type HistoryEntry struct {
	Comment        string
	NotifyCustomer bool
	VisibleOnFront bool
}

// Transition moves the order to state with its default status and appends history.
func (m *Machine) Transition(o *models.Order, state string, entry HistoryEntry) {
	o.State = state
	o.Status = m.registry.DefaultStatus(state)
	m.AppendHistory(o, models.EntityOrder, entry)
}

// Apply re-evaluates the order after a ledger change. It returns the previous
// state and whether it changed.
func (m *Machine) Apply(o *models.Order, entry HistoryEntry) (string, bool) {
	prev := o.State
	next, changed := Evaluate(o)
	if changed {
		m.Transition(o, next, entry)
	}
	return prev, changed
}

// Hold suspends the order and remembers the state to restore.
func (m *Machine) Hold(o *models.Order, entry HistoryEntry) error {
	if err := CanHold(o); err != nil {
		return err
	}
	o.HoldBeforeState = o.State
	o.HoldBeforeStatus = o.Status
	m.Transition(o, models.StateHolded, entry)
	return nil
}

// Unhold restores the state and status saved by Hold.
func (m *Machine) Unhold(o *models.Order, entry HistoryEntry) error {
	if err := CanUnhold(o); err != nil {
		return err
	}
	o.State = o.HoldBeforeState
	o.Status = o.HoldBeforeStatus
	if o.State == "" {
		o.State = models.StateNew
	}
	if o.Status == "" {
		o.Status = m.registry.DefaultStatus(o.State)
	}
	o.HoldBeforeState = ""
	o.HoldBeforeStatus = ""
	m.AppendHistory(o, models.EntityOrder, entry)
	return nil
}

// SetStatus changes the display status. The status must belong to the current state.
func (m *Machine) SetStatus(o *models.Order, status string, entry HistoryEntry) error {
	st, ok := m.registry.StateOf(status)
	if !ok || st != o.State {
		return notAllowed(o, "set status").WithDetail("status", status)
	}
	o.Status = status
	m.AppendHistory(o, models.EntityOrder, entry)
	return nil
}

// AppendHistory adds a history row carrying the current state and status.
func (m *Machine) AppendHistory(o *models.Order, entity string, entry HistoryEntry) *models.StatusHistory {
	o.StatusHistory = append(o.StatusHistory, models.StatusHistory{
		ID:                 uuid.New(),
		OrderID:            o.ID,
		Position:           len(o.StatusHistory),
		EntityName:         entity,
		State:              o.State,
		Status:             o.Status,
		Comment:            entry.Comment,
		IsCustomerNotified: entry.NotifyCustomer,
		IsVisibleOnFront:   entry.VisibleOnFront,
		CreatedAt:          m.now(),
	})
	return &o.StatusHistory[len(o.StatusHistory)-1]
}
