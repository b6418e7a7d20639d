package state

import (
	"sort"
	"sync"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
)

// Status is a display label mapped onto exactly one order state.
type Status struct {
	Code        string            `json:"code"`
	State       string            `json:"state"`
	Label       string            `json:"label"`
	StoreLabels map[string]string `json:"store_labels,omitempty"`
	IsDefault   bool              `json:"is_default"`
}

// Registry maps statuses to states (many-to-one) and resolves store labels.
type Registry struct {
	mu       sync.RWMutex
	statuses map[string]Status
	defaults map[string]string
}

// NewRegistry builds a registry from the given statuses. The first status of a
// state, or the one flagged IsDefault, becomes the state's default.
func NewRegistry(statuses ...Status) *Registry {
	r := &Registry{
		statuses: make(map[string]Status),
		defaults: make(map[string]string),
	}
	for _, s := range statuses {
		_ = r.Register(s)
	}
	return r
}

// DefaultRegistry holds one status per state plus the fraud review status.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Status{Code: "pending", State: models.StateNew, Label: "Pending", IsDefault: true},
		Status{Code: "processing", State: models.StateProcessing, Label: "Processing", IsDefault: true},
		Status{Code: "complete", State: models.StateComplete, Label: "Complete", IsDefault: true},
		Status{Code: "closed", State: models.StateClosed, Label: "Closed", IsDefault: true},
		Status{Code: "canceled", State: models.StateCanceled, Label: "Canceled", IsDefault: true},
		Status{Code: "holded", State: models.StateHolded, Label: "On Hold", IsDefault: true},
		Status{Code: "payment_review", State: models.StatePaymentReview, Label: "Payment Review", IsDefault: true},
		Status{Code: "fraud", State: models.StatePaymentReview, Label: "Suspected Fraud"},
	)
}

// Register adds or replaces a status.
func (r *Registry) Register(s Status) error {
	if s.Code == "" || !IsState(s.State) {
		return apperrors.ErrValidation.Withf("invalid status %q for state %q", s.Code, s.State)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[s.Code] = s
	if _, ok := r.defaults[s.State]; !ok || s.IsDefault {
		r.defaults[s.State] = s.Code
	}
	return nil
}

// StateOf returns the state a status belongs to.
func (r *Registry) StateOf(status string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[status]
	return s.State, ok
}

// DefaultStatus returns the default status of a state, falling back to the state code.
func (r *Registry) DefaultStatus(state string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if code, ok := r.defaults[state]; ok {
		return code
	}
	return state
}

// StatusesFor lists the status codes mapped onto a state.
func (r *Registry) StatusesFor(state string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for code, s := range r.statuses {
		if s.State == state {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

// Label returns the store-view label of a status.
func (r *Registry) Label(status, storeID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[status]
	if !ok {
		return status
	}
	if l, ok := s.StoreLabels[storeID]; ok && l != "" {
		return l
	}
	return s.Label
}
