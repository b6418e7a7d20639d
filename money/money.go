// Package money converts amounts between the three currency scopes of an order
// and owns the rounding rules applied when amounts are persisted.
package money

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/shopspring/decimal"
)

const (
	// PricePrecision is the number of fractional digits kept for unit prices and rates.
	PricePrecision = 4
	// CurrencyPrecision is the number of fractional digits of a persisted amount.
	CurrencyPrecision = 2

	divisionPrecision = 16
)

// Scope identifies one of the currency views of an order.
type Scope string

const (
	ScopeBase  Scope = "base"
	ScopeOrder Scope = "order"
	ScopeStore Scope = "store"
)

// Scopes lists every currency scope in display order.
var Scopes = []Scope{ScopeBase, ScopeOrder, ScopeStore}

// Rates are the exchange rates fixed on an order at placement time.
type Rates struct {
	BaseCurrency  string          `json:"base_currency"`
	OrderCurrency string          `json:"order_currency"`
	StoreCurrency string          `json:"store_currency"`
	StoreToBase   decimal.Decimal `json:"store_to_base_rate"`
	BaseToOrder   decimal.Decimal `json:"base_to_order_rate"`
}

// Validate fails with MissingExchangeRate when a rate is absent.
func (r Rates) Validate() error {
	if !r.StoreToBase.IsPositive() {
		return apperrors.ErrMissingExchangeRate.
			WithDetail("from", r.StoreCurrency).
			WithDetail("to", r.BaseCurrency)
	}
	if !r.BaseToOrder.IsPositive() {
		return apperrors.ErrMissingExchangeRate.
			WithDetail("from", r.BaseCurrency).
			WithDetail("to", r.OrderCurrency)
	}
	return nil
}

// Currency returns the currency code of a scope.
func (r Rates) Currency(s Scope) string {
	switch s {
	case ScopeOrder:
		return r.OrderCurrency
	case ScopeStore:
		return r.StoreCurrency
	default:
		return r.BaseCurrency
	}
}

// Converter converts amounts with a fixed set of rates. It never rounds.
type Converter struct {
	rates Rates
}

// NewConverter validates the rates and returns a converter bound to them.
func NewConverter(r Rates) (*Converter, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &Converter{rates: r}, nil
}

// Rates returns the rates the converter is bound to.
func (c *Converter) Rates() Rates { return c.rates }

// Convert moves amount from one scope to another through base currency.
func (c *Converter) Convert(amount decimal.Decimal, from, to Scope) decimal.Decimal {
	if from == to {
		return amount
	}
	return c.fromBase(c.toBase(amount, from), to)
}

func (c *Converter) toBase(amount decimal.Decimal, from Scope) decimal.Decimal {
	switch from {
	case ScopeStore:
		return amount.Mul(c.rates.StoreToBase)
	case ScopeOrder:
		return amount.DivRound(c.rates.BaseToOrder, divisionPrecision)
	default:
		return amount
	}
}

func (c *Converter) fromBase(amount decimal.Decimal, to Scope) decimal.Decimal {
	switch to {
	case ScopeOrder:
		return amount.Mul(c.rates.BaseToOrder)
	case ScopeStore:
		return amount.DivRound(c.rates.StoreToBase, divisionPrecision)
	default:
		return amount
	}
}

// ConvertRound converts and rounds to currency precision.
func (c *Converter) ConvertRound(amount decimal.Decimal, from, to Scope) decimal.Decimal {
	return Round(c.Convert(amount, from, to))
}

// Round rounds half away from zero to currency precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPrecision)
}

// RoundPrice rounds to unit price precision.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PricePrecision)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// RateProvider looks up exchange rates for order placement.
type RateProvider interface {
	Rates(ctx context.Context, base, order, store string) (Rates, error)
}

// StaticRateProvider serves rates from a fixed table keyed "FROM:TO".
type StaticRateProvider struct {
	table map[string]decimal.Decimal
}

// NewStaticRateProvider builds a provider from a table keyed "FROM:TO".
func NewStaticRateProvider(table map[string]decimal.Decimal) *StaticRateProvider {
	t := make(map[string]decimal.Decimal, len(table))
	for k, v := range table {
		t[strings.ToUpper(k)] = v
	}
	return &StaticRateProvider{table: t}
}

// ParseRateTable parses "USD:EUR=0.92,EUR:USD=1.087".
func ParseRateTable(s string) (map[string]decimal.Decimal, error) {
	table := map[string]decimal.Decimal{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || !strings.Contains(kv[0], ":") {
			return nil, fmt.Errorf("invalid rate entry %q", part)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid rate entry %q: %w", part, err)
		}
		table[strings.ToUpper(strings.TrimSpace(kv[0]))] = rate
	}
	return table, nil
}

// Rates resolves the store→base and base→order rates.
func (p *StaticRateProvider) Rates(_ context.Context, base, order, store string) (Rates, error) {
	r := Rates{BaseCurrency: base, OrderCurrency: order, StoreCurrency: store}
	r.StoreToBase = p.lookup(store, base)
	r.BaseToOrder = p.lookup(base, order)
	if err := r.Validate(); err != nil {
		return Rates{}, err
	}
	return r, nil
}

func (p *StaticRateProvider) lookup(from, to string) decimal.Decimal {
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1)
	}
	if rate, ok := p.table[strings.ToUpper(from+":"+to)]; ok {
		return RoundPrice(rate)
	}
	if inv, ok := p.table[strings.ToUpper(to+":"+from)]; ok && inv.IsPositive() {
		return decimal.NewFromInt(1).DivRound(inv, PricePrecision)
	}
	return decimal.Zero
}
