package settlement

import (
	"github.com/shopspring/decimal"
)

// Seed is the opening balance of the first day after prior, or zero when no
// earlier day was closed.
func Seed(prior *Closing) decimal.Decimal {
	if prior == nil {
		return decimal.Zero
	}
	return prior.NextDayOpeningBalance
}

// ApplyRunningBalance threads opening balances through summaries, which must
// be in ascending date order. Each day opens at the previous day's opening
// plus its net amount. A manual override (keyed YYYY-MM-DD) replaces the
// day's opening and the chain continues from it. Closed days are replaced by
// their persisted snapshot and hand over their next-day opening balance.
// The input slice is not modified.
func ApplyRunningBalance(summaries []DailySummary, seed decimal.Decimal, overrides map[string]decimal.Decimal, closings map[string]Closing) []DailySummary {
	out := make([]DailySummary, len(summaries))
	running := seed
	for i, s := range summaries {
		key := s.DateKey()
		if c, ok := closings[key]; ok {
			out[i] = c.Summary()
			running = c.NextDayOpeningBalance
			continue
		}

		s.PaymodeAmounts = cloneAmounts(s.PaymodeAmounts)
		s.OpeningBalance = running
		s.OpeningOverridden = false
		if o, ok := overrides[key]; ok {
			s.OpeningBalance = o
			s.OpeningOverridden = true
		}
		out[i] = s
		running = s.OpeningBalance.Add(s.NetAmount)
	}
	return out
}

// ClosingsByDate keys closings by YYYY-MM-DD.
func ClosingsByDate(closings []Closing) map[string]Closing {
	m := make(map[string]Closing, len(closings))
	for _, c := range closings {
		m[c.DateKey()] = c
	}
	return m
}

func cloneAmounts(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
