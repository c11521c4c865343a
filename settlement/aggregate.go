package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Aggregate builds one summary per calendar day of r, zero days included.
// Records outside r are ignored. Opening balances are left at zero; see
// ApplyRunningBalance.
func Aggregate(records []Record, r Range, catalog Catalog) []DailySummary {
	days := r.Days()
	summaries := make([]DailySummary, len(days))
	index := make(map[string]int, len(days))
	for i, d := range days {
		summaries[i] = emptySummary(d, catalog)
		index[d.Format(DateLayout)] = i
	}

	type seenKey struct {
		day      int
		typ      RecordType
		sourceID string
	}
	seen := map[seenKey]struct{}{}

	for _, rec := range records {
		i, ok := index[Day(rec.Date).Format(DateLayout)]
		if !ok {
			continue
		}
		s := &summaries[i]
		mode := catalog.Resolve(rec.PaymentModeID)
		cash := catalog.IsCash(mode)

		switch {
		case rec.Type.IncomeLike():
			s.TotalIncome = s.TotalIncome.Add(rec.Amount)
			if mode == "" {
				mode = UnassignedPaymentMode
			}
			s.PaymodeAmounts[mode] = s.PaymodeAmounts[mode].Add(rec.Amount)
			if cash {
				s.CashIncome = s.CashIncome.Add(rec.Amount)
			}
		case rec.Type == RecordExpense:
			s.TotalExpenses = s.TotalExpenses.Add(rec.Amount)
			if cash {
				s.CashExpenses = s.CashExpenses.Add(rec.Amount)
			}
		default:
			continue
		}

		if rec.Type != RecordAppointment && rec.Type != RecordBilling {
			continue
		}
		k := seenKey{day: i, typ: rec.Type, sourceID: rec.SourceID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if rec.Type == RecordAppointment {
			s.AppointmentCount++
		} else {
			s.BillingCount++
		}
	}

	for i := range summaries {
		summaries[i].NetAmount = summaries[i].TotalIncome.Sub(summaries[i].TotalExpenses)
	}
	return summaries
}

func emptySummary(day time.Time, catalog Catalog) DailySummary {
	s := DailySummary{
		Date:           day,
		OpeningBalance: decimal.Zero,
		TotalIncome:    decimal.Zero,
		TotalExpenses:  decimal.Zero,
		NetAmount:      decimal.Zero,
		CashIncome:     decimal.Zero,
		CashExpenses:   decimal.Zero,
		PaymodeAmounts: make(map[string]decimal.Decimal),
	}
	for _, m := range catalog.Active() {
		s.PaymodeAmounts[m.ID] = decimal.Zero
	}
	return s
}

// PaymodeTotal sums the payment-mode buckets of a summary.
func PaymodeTotal(s DailySummary) decimal.Decimal {
	total := decimal.Zero
	for _, v := range s.PaymodeAmounts {
		total = total.Add(v)
	}
	return total
}
