package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyClosed    = errors.New("business day is already closed")
	ErrLockNotObtained  = errors.New("business day is being closed by another session")
	ErrIncompleteData   = errors.New("settlement data is incomplete")
	ErrPersist          = errors.New("failed to persist settlement")
	ErrClosedByRequired = errors.New("closed_by is required")
)

// MaxLookbackDays bounds how far back a report walks to the last closed day
// when threading the running balance.
const MaxLookbackDays = 90

// Locker serializes closes of the same business day across sessions.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// CloseRequest is an operator's request to close one business day.
type CloseRequest struct {
	Scope           Scope
	Date            time.Time
	Withdrawal      string
	OpeningOverride *decimal.Decimal
	ClosedBy        string
}

// CloseResult describes a reconciled day; State is StateClosed once the
// closing was persisted.
type CloseResult struct {
	State          DayState       `json:"state"`
	Summary        DailySummary   `json:"summary"`
	Reconciliation Reconciliation `json:"reconciliation"`
	Closing        *Closing       `json:"closing,omitempty"`
}

// Closer runs the close-day flow.
type Closer struct {
	loader *Loader
	store  SettlementStore
	locker Locker
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewCloser creates a Closer. locker may be nil, in which case concurrent
// closes of the same day are not arbitrated and the last write wins.
func NewCloser(loader *Loader, store SettlementStore, locker Locker, logger logrus.FieldLogger) *Closer {
	return &Closer{loader: loader, store: store, locker: locker, logger: logger, now: time.Now}
}

// Preview reconciles the day without persisting anything.
func (c *Closer) Preview(ctx context.Context, req CloseRequest) (*CloseResult, error) {
	withdrawal, err := ParseWithdrawal(req.Withdrawal)
	if err != nil {
		return nil, err
	}
	summary, catalog, err := c.openDay(ctx, req)
	if err != nil {
		return nil, err
	}
	rec, err := Reconcile(summary, withdrawal, catalog)
	if err != nil {
		return nil, err
	}
	return &CloseResult{State: StateValidating, Summary: summary, Reconciliation: rec}, nil
}

// Close validates the withdrawal, reconciles the day and persists it. Any
// failure leaves the day open; nothing is retried.
func (c *Closer) Close(ctx context.Context, req CloseRequest) (*CloseResult, error) {
	if req.ClosedBy == "" {
		return nil, ErrClosedByRequired
	}
	withdrawal, err := ParseWithdrawal(req.Withdrawal)
	if err != nil {
		return nil, err
	}

	day := Day(req.Date)
	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, lockKey(req.Scope, day))
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	summary, catalog, err := c.openDay(ctx, req)
	if err != nil {
		return nil, err
	}
	rec, err := Reconcile(summary, withdrawal, catalog)
	if err != nil {
		return nil, err
	}

	closing := buildClosing(req, summary, rec, c.now())
	if err := c.store.Upsert(ctx, closing); err != nil {
		c.logger.WithFields(logrus.Fields{
			"scope": req.Scope.String(),
			"date":  closing.DateKey(),
		}).WithError(err).Error("settlement upsert failed")
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	c.logger.WithFields(logrus.Fields{
		"scope":      req.Scope.String(),
		"date":       closing.DateKey(),
		"withdrawal": rec.WithdrawalAmount.StringFixed(2),
		"next_open":  rec.NextDayOpeningBalance.StringFixed(2),
		"clamped":    rec.Clamped,
		"closed_by":  closing.ClosedBy,
	}).Info("business day closed")

	return &CloseResult{
		State:          StateClosed,
		Summary:        closing.Summary(),
		Reconciliation: rec,
		Closing:        &closing,
	}, nil
}

// openDay loads the still-open day; the loader threads its running balance
// from the last closed day.
func (c *Closer) openDay(ctx context.Context, req CloseRequest) (DailySummary, Catalog, error) {
	day := Day(req.Date)

	existing, err := c.store.Closings(ctx, req.Scope, Range{From: day, To: day})
	if err != nil {
		return DailySummary{}, Catalog{}, fmt.Errorf("load closing: %w", err)
	}
	if len(existing) > 0 {
		return DailySummary{}, Catalog{}, ErrAlreadyClosed
	}

	q := Query{Scope: req.Scope, Range: Range{From: day, To: day}}
	if req.OpeningOverride != nil {
		q.Overrides = map[string]decimal.Decimal{day.Format(DateLayout): *req.OpeningOverride}
	}
	report, err := c.loader.Load(ctx, q)
	if err != nil {
		return DailySummary{}, Catalog{}, err
	}
	if !report.Complete() {
		return DailySummary{}, Catalog{}, fmt.Errorf("%w: %v", ErrIncompleteData, report.Errors)
	}
	summary, _ := report.Last()
	return summary, NewCatalog(report.PaymentModes), nil
}

func buildClosing(req CloseRequest, s DailySummary, rec Reconciliation, now time.Time) Closing {
	return Closing{
		ID:                    uuid.New(),
		Scope:                 req.Scope,
		BusinessDate:          s.Date,
		OpeningBalance:        s.OpeningBalance,
		TotalIncome:           s.TotalIncome,
		TotalExpenses:         s.TotalExpenses,
		NetAmount:             s.NetAmount,
		CashIncome:            s.CashIncome,
		CashExpenses:          s.CashExpenses,
		CashAvailable:         rec.CashAvailable,
		WithdrawalAmount:      rec.WithdrawalAmount,
		NextDayOpeningBalance: rec.NextDayOpeningBalance,
		Variance:              rec.Variance,
		AppointmentCount:      s.AppointmentCount,
		BillingCount:          s.BillingCount,
		PaymodeLines:          rec.Lines,
		ClosedBy:              req.ClosedBy,
		ClosedAt:              now,
	}
}

func lockKey(scope Scope, day time.Time) string {
	return fmt.Sprintf("settlement:close:%s:%s:%s", scope.AccountCode, scope.RetailCode, day.Format(DateLayout))
}
