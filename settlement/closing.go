package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scope identifies the account/retail pair every read and write is bound to.
type Scope struct {
	AccountCode string `json:"account_code"`
	RetailCode  string `json:"retail_code"`
}

func (s Scope) String() string {
	return s.AccountCode + "/" + s.RetailCode
}

// PaymodeLine is the reconciliation triple of one payment mode. Collected is
// the amount the day's records put into the mode's bucket.
type PaymodeLine struct {
	PaymentModeID string          `json:"payment_mode_id"`
	Name          string          `json:"name"`
	Cash          bool            `json:"cash"`
	Collected     decimal.Decimal `json:"collected"`
	Expected      decimal.Decimal `json:"expected"`
	Actual        decimal.Decimal `json:"actual"`
	Variance      decimal.Decimal `json:"variance"`
}

// Closing is a persisted, closed business day.
type Closing struct {
	ID                    uuid.UUID       `json:"id"`
	Scope                 Scope           `json:"scope"`
	BusinessDate          time.Time       `json:"business_date"`
	OpeningBalance        decimal.Decimal `json:"opening_balance"`
	TotalIncome           decimal.Decimal `json:"total_income"`
	TotalExpenses         decimal.Decimal `json:"total_expenses"`
	NetAmount             decimal.Decimal `json:"net_amount"`
	CashIncome            decimal.Decimal `json:"cash_income"`
	CashExpenses          decimal.Decimal `json:"cash_expenses"`
	CashAvailable         decimal.Decimal `json:"cash_available"`
	WithdrawalAmount      decimal.Decimal `json:"withdrawal_amount"`
	NextDayOpeningBalance decimal.Decimal `json:"next_day_opening_balance"`
	Variance              decimal.Decimal `json:"variance"`
	AppointmentCount      int             `json:"appointment_count"`
	BillingCount          int             `json:"billing_count"`
	PaymodeLines          []PaymodeLine   `json:"paymode_lines"`
	ClosedBy              string          `json:"closed_by"`
	ClosedAt              time.Time       `json:"closed_at"`
}

// DateKey is the closing's business date as YYYY-MM-DD.
func (c Closing) DateKey() string {
	return c.BusinessDate.Format(DateLayout)
}

// Summary rebuilds the closed day's summary from the persisted snapshot.
func (c Closing) Summary() DailySummary {
	withdrawal := c.WithdrawalAmount
	next := c.NextDayOpeningBalance
	closedAt := c.ClosedAt
	s := DailySummary{
		Date:                  Day(c.BusinessDate),
		OpeningBalance:        c.OpeningBalance,
		TotalIncome:           c.TotalIncome,
		TotalExpenses:         c.TotalExpenses,
		NetAmount:             c.NetAmount,
		CashIncome:            c.CashIncome,
		CashExpenses:          c.CashExpenses,
		PaymodeAmounts:        make(map[string]decimal.Decimal, len(c.PaymodeLines)),
		AppointmentCount:      c.AppointmentCount,
		BillingCount:          c.BillingCount,
		Closed:                true,
		WithdrawalAmount:      &withdrawal,
		NextDayOpeningBalance: &next,
		ClosedBy:              c.ClosedBy,
		ClosedAt:              &closedAt,
	}
	for _, l := range c.PaymodeLines {
		s.PaymodeAmounts[l.PaymentModeID] = l.Collected
	}
	return s
}

// LatestClosing picks the closing with the greatest business date.
func LatestClosing(closings []Closing) (Closing, bool) {
	var latest Closing
	found := false
	for _, c := range closings {
		if !found || c.BusinessDate.After(latest.BusinessDate) {
			latest = c
			found = true
		}
	}
	return latest, found
}
