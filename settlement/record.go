// Package settlement turns raw point-of-sale rows into daily summaries and
// closes business days against a cash withdrawal.
package settlement

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecordType tags a normalized record with its source kind
type RecordType string

const (
	RecordAppointment RecordType = "appointment"
	RecordBilling     RecordType = "billing"
	RecordIncome      RecordType = "income"
	RecordExpense     RecordType = "expense"
)

// IncomeLike reports whether the record contributes to income and payment-mode buckets.
func (t RecordType) IncomeLike() bool {
	return t == RecordAppointment || t == RecordBilling || t == RecordIncome
}

// UnassignedPaymentMode buckets income that arrived without a payment mode.
const UnassignedPaymentMode = "unassigned"

// Record is the unified shape every upstream row is normalized into.
type Record struct {
	ID            string          `json:"id"`
	Type          RecordType      `json:"type"`
	SourceID      string          `json:"source_id"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentModeID string          `json:"payment_mode_id,omitempty"`
	Status        string          `json:"status,omitempty"`
}

// Row is one raw row as decoded from an upstream read endpoint.
type Row map[string]any

// SourceRows holds the raw rows of the three independent upstream sources.
type SourceRows struct {
	Appointments   []Row
	Billings       []Row
	IncomeExpenses []Row
}

// PaymentMode is an entry of the externally owned payment-mode catalog.
type PaymentMode struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
	IsActive     bool   `json:"is_active"`
}

// IsCash matches "cash" anywhere in the mode name, ignoring case.
func (m PaymentMode) IsCash() bool {
	return strings.Contains(strings.ToLower(m.Name), "cash")
}

// Catalog indexes payment modes by id.
type Catalog struct {
	modes []PaymentMode
	byID  map[string]PaymentMode
}

// NewCatalog builds a catalog; duplicated ids keep the first entry.
func NewCatalog(modes []PaymentMode) Catalog {
	c := Catalog{byID: make(map[string]PaymentMode, len(modes))}
	for _, m := range modes {
		if _, ok := c.byID[m.ID]; ok {
			continue
		}
		c.byID[m.ID] = m
		c.modes = append(c.modes, m)
	}
	return c
}

// Modes returns the catalog entries in insertion order.
func (c Catalog) Modes() []PaymentMode {
	return c.modes
}

// Active returns the active modes.
func (c Catalog) Active() []PaymentMode {
	active := make([]PaymentMode, 0, len(c.modes))
	for _, m := range c.modes {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}

// Lookup finds a mode by id.
func (c Catalog) Lookup(id string) (PaymentMode, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Resolve maps a payment-mode reference to a catalog id. Sources that carry
// the mode name instead of its id are matched by name, ignoring case.
// Unknown references are returned unchanged.
func (c Catalog) Resolve(ref string) string {
	if _, ok := c.byID[ref]; ok || ref == "" {
		return ref
	}
	name := strings.TrimSpace(ref)
	for _, m := range c.modes {
		if strings.EqualFold(m.Name, name) {
			return m.ID
		}
	}
	return ref
}

// IsCash reports whether id refers to a cash payment mode.
func (c Catalog) IsCash(id string) bool {
	m, ok := c.byID[id]
	return ok && m.IsCash()
}

// DailySummary is the settlement view of a single business day.
type DailySummary struct {
	Date              time.Time                  `json:"-"`
	OpeningBalance    decimal.Decimal            `json:"opening_balance"`
	OpeningOverridden bool                       `json:"opening_overridden"`
	TotalIncome       decimal.Decimal            `json:"total_income"`
	TotalExpenses     decimal.Decimal            `json:"total_expenses"`
	NetAmount         decimal.Decimal            `json:"net_amount"`
	CashIncome        decimal.Decimal            `json:"cash_income"`
	CashExpenses      decimal.Decimal            `json:"cash_expenses"`
	PaymodeAmounts    map[string]decimal.Decimal `json:"paymode_amounts"`
	AppointmentCount  int                        `json:"appointment_count"`
	BillingCount      int                        `json:"billing_count"`

	Closed                bool             `json:"closed"`
	WithdrawalAmount      *decimal.Decimal `json:"withdrawal_amount,omitempty"`
	NextDayOpeningBalance *decimal.Decimal `json:"next_day_opening_balance,omitempty"`
	ClosedBy              string           `json:"closed_by,omitempty"`
	ClosedAt              *time.Time       `json:"closed_at,omitempty"`
}

// DateKey is the summary's calendar date as YYYY-MM-DD.
func (s DailySummary) DateKey() string {
	return s.Date.Format(DateLayout)
}

// CashAvailable is max(0, opening + cash income - cash expenses).
func (s DailySummary) CashAvailable() decimal.Decimal {
	return nonNegative(s.OpeningBalance.Add(s.CashIncome).Sub(s.CashExpenses))
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (s DailySummary) MarshalJSON() ([]byte, error) {
	type alias DailySummary
	return json.Marshal(struct {
		Date string `json:"date"`
		alias
	}{Date: s.DateKey(), alias: alias(s)})
}
