package settlement

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrWithdrawalRequired = errors.New("withdrawal amount is required")
	ErrWithdrawalInvalid  = errors.New("withdrawal amount is not a valid number")
	ErrVarianceExceeded   = errors.New("settlement variance exceeds tolerance")
)

// VarianceTolerance is the currency rounding epsilon a closed day must stay under.
var VarianceTolerance = decimal.RequireFromString("0.005")

// DayState is the close-day lifecycle of one business day.
type DayState string

const (
	StateOpen       DayState = "open"
	StateValidating DayState = "validating"
	StateClosed     DayState = "closed"
)

// Reconciliation is the outcome of reconciling a day's cash drawer.
type Reconciliation struct {
	CashAvailable         decimal.Decimal `json:"cash_available"`
	RequestedWithdrawal   decimal.Decimal `json:"requested_withdrawal"`
	WithdrawalAmount      decimal.Decimal `json:"withdrawal_amount"`
	Clamped               bool            `json:"clamped"`
	NextDayOpeningBalance decimal.Decimal `json:"next_day_opening_balance"`
	Variance              decimal.Decimal `json:"variance"`
	Lines                 []PaymodeLine   `json:"lines"`
}

// ParseWithdrawal reads the operator's withdrawal input, rounded to the cent.
// Blank input is distinct from zero and rejected.
func ParseWithdrawal(input string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(input), ",", "")
	if s == "" {
		return decimal.Zero, ErrWithdrawalRequired
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrWithdrawalInvalid, input)
	}
	return d.Round(2), nil
}

// Reconcile clamps the withdrawal into [0, cash available] and derives the
// next-day opening balance and variance. Non-cash payment modes are
// reference only: their actual amount equals the expected amount.
func Reconcile(s DailySummary, withdrawal decimal.Decimal, catalog Catalog) (Reconciliation, error) {
	exact := s.CashAvailable()
	available := exact.Round(2)
	requested := withdrawal.Round(2)
	w := clamp(requested, decimal.Zero, available)
	next := nonNegative(available.Sub(w))
	counted := w.Add(next)

	// variance is measured on the cent-rounded figures that get persisted
	rec := Reconciliation{
		CashAvailable:         available,
		RequestedWithdrawal:   withdrawal,
		WithdrawalAmount:      w,
		Clamped:               !w.Equal(requested),
		NextDayOpeningBalance: next,
		Variance:              counted.Sub(exact),
		Lines:                 paymodeLines(s, catalog, available, counted),
	}
	if rec.Variance.Abs().GreaterThanOrEqual(VarianceTolerance) {
		return rec, fmt.Errorf("%w: %s", ErrVarianceExceeded, rec.Variance.StringFixed(3))
	}
	return rec, nil
}

// paymodeLines lists active modes in display order, then any other bucket.
// The cash drawer is reconciled on the first cash mode only.
func paymodeLines(s DailySummary, catalog Catalog, expectedCash, countedCash decimal.Decimal) []PaymodeLine {
	modes := slices.Clone(catalog.Active())
	slices.SortStableFunc(modes, func(a, b PaymentMode) int {
		return a.DisplayOrder - b.DisplayOrder
	})

	listed := map[string]bool{}
	var lines []PaymodeLine
	drawer := false
	for _, m := range modes {
		listed[m.ID] = true
		collected := amountOrZero(s.PaymodeAmounts, m.ID)
		line := PaymodeLine{
			PaymentModeID: m.ID,
			Name:          m.Name,
			Collected:     collected,
			Expected:      collected,
			Actual:        collected,
			Variance:      decimal.Zero,
		}
		if m.IsCash() && !drawer {
			drawer = true
			line.Cash = true
			line.Expected = expectedCash
			line.Actual = countedCash
			line.Variance = countedCash.Sub(expectedCash)
		}
		lines = append(lines, line)
	}

	var extra []string
	for id := range s.PaymodeAmounts {
		if !listed[id] {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	for _, id := range extra {
		name := id
		if m, ok := catalog.Lookup(id); ok {
			name = m.Name
		}
		collected := s.PaymodeAmounts[id]
		lines = append(lines, PaymodeLine{
			PaymentModeID: id,
			Name:          name,
			Collected:     collected,
			Expected:      collected,
			Actual:        collected,
			Variance:      decimal.Zero,
		})
	}
	return lines
}

func amountOrZero(m map[string]decimal.Decimal, key string) decimal.Decimal {
	if v, ok := m[key]; ok {
		return v
	}
	return decimal.Zero
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
