package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Upstream sections whose failures are tolerated individually.
const (
	SectionAppointments   = "appointments"
	SectionBillings       = "billings"
	SectionIncomeExpenses = "income_expenses"
)

// ErrStaleResult is returned by View.Refresh when a newer refresh was
// triggered before this one finished.
var ErrStaleResult = errors.New("report superseded by a newer request")

// SourceReader reads the upstream rows of one account/retail pair.
type SourceReader interface {
	AppointmentRows(ctx context.Context, scope Scope, r Range) ([]Row, error)
	BillingRows(ctx context.Context, scope Scope, r Range) ([]Row, error)
	IncomeExpenseRows(ctx context.Context, scope Scope, r Range) ([]Row, error)
	PaymentModes(ctx context.Context, scope Scope) ([]PaymentMode, error)
}

// SettlementStore persists closed days.
type SettlementStore interface {
	Closings(ctx context.Context, scope Scope, r Range) ([]Closing, error)
	// LatestBefore returns nil when no day before the given one was closed.
	LatestBefore(ctx context.Context, scope Scope, day time.Time) (*Closing, error)
	Upsert(ctx context.Context, c Closing) error
}

// Query selects a report.
type Query struct {
	Scope     Scope
	Range     Range
	Overrides map[string]decimal.Decimal
}

// Report is the settlement view of a date range.
type Report struct {
	Scope        Scope             `json:"scope"`
	From         string            `json:"from"`
	To           string            `json:"to"`
	Summaries    []DailySummary    `json:"summaries"`
	PaymentModes []PaymentMode     `json:"payment_modes"`
	Errors       map[string]string `json:"errors,omitempty"`
	Generation   uint64            `json:"generation,omitempty"`
}

// Last returns the summary of the final day in the report.
func (r *Report) Last() (DailySummary, bool) {
	if r == nil || len(r.Summaries) == 0 {
		return DailySummary{}, false
	}
	return r.Summaries[len(r.Summaries)-1], true
}

// Complete reports whether every upstream section loaded.
func (r *Report) Complete() bool {
	return r != nil && len(r.Errors) == 0
}

// Loader fetches upstream data and builds reports.
type Loader struct {
	sources     SourceReader
	settlements SettlementStore
	logger      logrus.FieldLogger
}

// NewLoader creates a Loader.
func NewLoader(sources SourceReader, settlements SettlementStore, logger logrus.FieldLogger) *Loader {
	return &Loader{sources: sources, settlements: settlements, logger: logger}
}

// Load reads every upstream source concurrently and aggregates only after all
// of them resolved. A failed appointment, billing or income/expense read is
// recorded in Report.Errors and that section counts as empty; failures of the
// payment-mode catalog or the settlement store abort the load.
func (l *Loader) Load(ctx context.Context, q Query) (*Report, error) {
	prior, err := l.settlements.LatestBefore(ctx, q.Scope, q.Range.From)
	if err != nil {
		return nil, fmt.Errorf("load prior closing: %w", err)
	}
	// Unclosed days between the prior closing and the range carry their nets
	// into the first opening balance, so they are loaded and trimmed after.
	span := Range{From: balanceStart(prior, q.Range.From), To: q.Range.To}

	var (
		rows       SourceRows
		modes      []PaymentMode
		closings   []Closing
		sectionErr = map[string]error{}
		mu         sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	section := func(name string, read func(context.Context, Scope, Range) ([]Row, error), dst *[]Row) func() error {
		return func() error {
			got, err := read(gctx, q.Scope, span)
			if err != nil {
				mu.Lock()
				sectionErr[name] = err
				mu.Unlock()
				return nil
			}
			*dst = got
			return nil
		}
	}

	g.Go(section(SectionAppointments, l.sources.AppointmentRows, &rows.Appointments))
	g.Go(section(SectionBillings, l.sources.BillingRows, &rows.Billings))
	g.Go(section(SectionIncomeExpenses, l.sources.IncomeExpenseRows, &rows.IncomeExpenses))
	g.Go(func() error {
		var err error
		modes, err = l.sources.PaymentModes(gctx, q.Scope)
		if err != nil {
			return fmt.Errorf("load payment modes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		closings, err = l.settlements.Closings(gctx, q.Scope, q.Range)
		if err != nil {
			return fmt.Errorf("load closings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Scope:        q.Scope,
		From:         q.Range.From.Format(DateLayout),
		To:           q.Range.To.Format(DateLayout),
		PaymentModes: modes,
	}
	for name, err := range sectionErr {
		if report.Errors == nil {
			report.Errors = map[string]string{}
		}
		report.Errors[name] = err.Error()
		l.logger.WithFields(logrus.Fields{
			"section": name,
			"scope":   q.Scope.String(),
			"range":   span.String(),
		}).WithError(err).Warn("settlement section unavailable")
	}

	catalog := NewCatalog(modes)
	summaries := Aggregate(Normalize(rows), span, catalog)
	summaries = ApplyRunningBalance(summaries, Seed(prior), q.Overrides, ClosingsByDate(closings))
	report.Summaries = summaries[len(span.Days())-len(q.Range.Days()):]
	return report, nil
}

// balanceStart is the first day whose net feeds the opening balance of from:
// the day after the prior closing, but no more than MaxLookbackDays back.
func balanceStart(prior *Closing, from time.Time) time.Time {
	from = Day(from)
	start := from
	if prior != nil {
		start = Day(prior.BusinessDate).AddDate(0, 0, 1)
	}
	if earliest := from.AddDate(0, 0, -MaxLookbackDays); start.Before(earliest) {
		start = earliest
	}
	if start.After(from) {
		start = from
	}
	return start
}

// View keeps the latest report of one dashboard. Each Refresh supersedes the
// previous one: the older load is cancelled and its result discarded.
type View struct {
	loader *Loader

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	current    *Report
}

// NewView creates an empty view over loader.
func NewView(loader *Loader) *View {
	return &View{loader: loader}
}

// Refresh loads q and applies it unless a newer Refresh started meanwhile.
func (v *View) Refresh(ctx context.Context, q Query) (*Report, error) {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	if v.cancel != nil {
		v.cancel()
	}
	lctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()
	defer cancel()

	report, err := v.loader.Load(lctx, q)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return nil, ErrStaleResult
	}
	v.cancel = nil
	if err != nil {
		return nil, err
	}
	report.Generation = gen
	v.current = report
	return report, nil
}

// Current returns the last applied report, or nil.
func (v *View) Current() *Report {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Views hands out one View per dashboard key. A view lives only while a
// refresh on it is in flight, so the registry never outgrows the number of
// concurrent requests.
type Views struct {
	loader *Loader

	mu    sync.Mutex
	views map[string]*viewEntry
}

type viewEntry struct {
	view *View
	refs int
}

// NewViews creates an empty registry.
func NewViews(loader *Loader) *Views {
	return &Views{loader: loader, views: map[string]*viewEntry{}}
}

// Refresh refreshes the view of key, superseding any in-flight refresh of
// the same key.
func (vs *Views) Refresh(ctx context.Context, key string, q Query) (*Report, error) {
	vs.mu.Lock()
	e, ok := vs.views[key]
	if !ok {
		e = &viewEntry{view: NewView(vs.loader)}
		vs.views[key] = e
	}
	e.refs++
	vs.mu.Unlock()

	report, err := e.view.Refresh(ctx, q)

	vs.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(vs.views, key)
	}
	vs.mu.Unlock()
	return report, err
}

// Len is the number of views currently held.
func (vs *Views) Len() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.views)
}
