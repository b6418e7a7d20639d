package repository

import (
	"fmt"

	"github.com/MahoCommerce/maho-sub002/models"
)

// Clones copy every slice and pointer an entity owns. decimal.Decimal values are
// immutable and are shared.

func errDuplicateKey(entity string, key interface{}) error {
	return fmt.Errorf("duplicate key for %s %v", entity, key)
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func cloneJSON(m models.JSONMap) models.JSONMap {
	if m == nil {
		return nil
	}
	out := make(models.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneQuote(q *models.Quote) *models.Quote {
	c := *q
	c.Items = cloneSlice(q.Items)
	for i := range c.Items {
		c.Items[i].ExtensionAttributes = cloneJSON(c.Items[i].ExtensionAttributes)
	}
	c.Addresses = cloneSlice(q.Addresses)
	return &c
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = cloneSlice(o.Items)
	for i := range c.Items {
		c.Items[i].ExtensionAttributes = cloneJSON(c.Items[i].ExtensionAttributes)
	}
	c.Addresses = cloneSlice(o.Addresses)
	c.StatusHistory = cloneSlice(o.StatusHistory)
	if o.Payment != nil {
		p := *o.Payment
		p.AdditionalInfo = cloneJSON(p.AdditionalInfo)
		c.Payment = &p
	}
	return &c
}

func cloneInvoice(inv *models.Invoice) *models.Invoice {
	c := *inv
	c.Items = cloneSlice(inv.Items)
	c.Comments = cloneSlice(inv.Comments)
	return &c
}

func cloneShipment(s *models.Shipment) *models.Shipment {
	c := *s
	c.Items = cloneSlice(s.Items)
	c.Tracks = cloneSlice(s.Tracks)
	c.Comments = cloneSlice(s.Comments)
	return &c
}

func cloneCreditmemo(cm *models.Creditmemo) *models.Creditmemo {
	c := *cm
	c.Items = cloneSlice(cm.Items)
	c.Comments = cloneSlice(cm.Comments)
	return &c
}
