package settlement

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Candidate field names per logical attribute, in priority order. The first
// candidate holding a usable value wins.
var (
	dateFields            = []string{"payment_date", "created_at", "updated_at"}
	appointmentDateFields = []string{"payment_date", "created_at", "updated_at", "appointment_date"}
	entryDateFields       = []string{"payment_date", "created_at", "updated_at", "date", "entry_date"}

	amountFields      = []string{"amount", "paid_amount", "total_amount", "grand_total"}
	paymentModeFields = []string{"payment_mode_id", "paymode_id", "payment_mode"}
	statusFields      = []string{"status", "payment_status", "billstatus"}

	appointmentIDFields = []string{"appointment_id", "id"}
	invoiceIDFields     = []string{"invoice_id", "billing_id", "id"}
	entryIDFields       = []string{"id", "entry_id"}
	entryTypeFields     = []string{"type", "entry_type"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// Normalize flattens the three upstream sources into records. Rows without a
// resolvable date are dropped; malformed amounts count as zero.
func Normalize(rows SourceRows) []Record {
	records := make([]Record, 0, len(rows.Appointments)+len(rows.Billings)+len(rows.IncomeExpenses))
	records = append(records, normalizeAppointments(rows.Appointments)...)
	records = append(records, normalizeBillings(rows.Billings)...)
	records = append(records, normalizeEntries(rows.IncomeExpenses)...)

	slices.SortStableFunc(records, func(a, b Record) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return records
}

func normalizeAppointments(rows []Row) []Record {
	var out []Record
	for i, r := range rows {
		date, ok := r.date(appointmentDateFields)
		if !ok {
			continue
		}
		sourceID := r.str(appointmentIDFields)
		if sourceID == "" {
			sourceID = "row-" + strconv.Itoa(i)
		}
		mode := r.str(paymentModeFields)
		out = append(out, Record{
			ID:            recordID(RecordAppointment, sourceID, strconv.Itoa(i)),
			Type:          RecordAppointment,
			SourceID:      sourceID,
			Date:          date,
			Amount:        r.amount(),
			PaymentModeID: mode,
			Status:        r.status(),
		})
	}
	return out
}

type invoiceSplit struct {
	date   time.Time
	amount decimal.Decimal
	status string
}

// normalizeBillings collapses payment rows into one record per distinct
// payment mode of each invoice.
func normalizeBillings(rows []Row) []Record {
	var invoices []string
	splits := map[string]map[string]*invoiceSplit{}
	modeOrder := map[string][]string{}

	for i, r := range rows {
		date, ok := r.date(dateFields)
		if !ok {
			continue
		}
		invoice := r.str(invoiceIDFields)
		if invoice == "" {
			invoice = "row-" + strconv.Itoa(i)
		}
		mode := r.str(paymentModeFields)

		byMode, seen := splits[invoice]
		if !seen {
			byMode = map[string]*invoiceSplit{}
			splits[invoice] = byMode
			invoices = append(invoices, invoice)
		}
		s, ok := byMode[mode]
		if !ok {
			s = &invoiceSplit{date: date, amount: decimal.Zero}
			byMode[mode] = s
			modeOrder[invoice] = append(modeOrder[invoice], mode)
		}
		if date.Before(s.date) {
			s.date = date
		}
		s.amount = s.amount.Add(r.amount())
		if s.status == "" {
			s.status = r.status()
		}
	}

	var out []Record
	for _, invoice := range invoices {
		for _, mode := range modeOrder[invoice] {
			s := splits[invoice][mode]
			out = append(out, Record{
				ID:            recordID(RecordBilling, invoice, mode),
				Type:          RecordBilling,
				SourceID:      invoice,
				Date:          s.date,
				Amount:        s.amount,
				PaymentModeID: mode,
				Status:        s.status,
			})
		}
	}
	return out
}

func normalizeEntries(rows []Row) []Record {
	var out []Record
	for i, r := range rows {
		typ, ok := ParseEntryType(r.str(entryTypeFields))
		if !ok {
			continue
		}
		date, ok := r.date(entryDateFields)
		if !ok {
			continue
		}
		sourceID := r.str(entryIDFields)
		if sourceID == "" {
			sourceID = "row-" + strconv.Itoa(i)
		}
		out = append(out, Record{
			ID:            recordID(typ, sourceID, strconv.Itoa(i)),
			Type:          typ,
			SourceID:      sourceID,
			Date:          date,
			Amount:        r.amount(),
			PaymentModeID: r.str(paymentModeFields),
			Status:        r.status(),
		})
	}
	return out
}

// ParseEntryType maps income/expense type tags, including the inflow and
// outflow aliases.
func ParseEntryType(s string) (RecordType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "inflow":
		return RecordIncome, true
	case "expense", "outflow":
		return RecordExpense, true
	}
	return "", false
}

func recordID(t RecordType, sourceID, discriminator string) string {
	if discriminator == "" {
		discriminator = "-"
	}
	return fmt.Sprintf("%s:%s:%s", t, sourceID, discriminator)
}

func (r Row) date(fields []string) (time.Time, bool) {
	for _, f := range fields {
		if t, ok := toTime(r[f]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (r Row) amount() decimal.Decimal {
	for _, f := range amountFields {
		if d, ok := toDecimal(r[f]); ok {
			return nonNegative(d.Round(2))
		}
	}
	return decimal.Zero
}

func (r Row) str(fields []string) string {
	for _, f := range fields {
		if s := toString(r[f]); s != "" {
			return s
		}
	}
	return ""
}

func (r Row) status() string {
	return strings.ToLower(r.str(statusFields))
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return Day(t), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return Day(*t), true
	case []byte:
		return toTime(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return Day(parsed), true
			}
		}
	}
	return time.Time{}, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		return toDecimal(n.String())
	case []byte:
		return toDecimal(string(n))
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case []byte:
		return strings.TrimSpace(string(s))
	case int:
		return strconv.Itoa(s)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case fmt.Stringer:
		return s.String()
	}
	return ""
}
