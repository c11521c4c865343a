package settlement

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// fakeSources is an in-memory SourceReader.
type fakeSources struct {
	appointments []Row
	billings     []Row
	entries      []Row
	modes        []PaymentMode

	appointmentsErr error
	billingsErr     error
	entriesErr      error
	modesErr        error

	// block, when set, is waited on by every read.
	block chan struct{}
}

func (f *fakeSources) wait(ctx context.Context) error {
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSources) AppointmentRows(ctx context.Context, _ Scope, _ Range) ([]Row, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.appointments, f.appointmentsErr
}

func (f *fakeSources) BillingRows(ctx context.Context, _ Scope, _ Range) ([]Row, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.billings, f.billingsErr
}

func (f *fakeSources) IncomeExpenseRows(ctx context.Context, _ Scope, _ Range) ([]Row, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.entries, f.entriesErr
}

func (f *fakeSources) PaymentModes(ctx context.Context, _ Scope) ([]PaymentMode, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.modes, f.modesErr
}

// memStore is an in-memory SettlementStore.
type memStore struct {
	mu        sync.Mutex
	closings  map[string]Closing
	upsertErr error
	upserts   int
}

func newMemStore(closings ...Closing) *memStore {
	m := &memStore{closings: map[string]Closing{}}
	for _, c := range closings {
		m.closings[c.Scope.String()+"|"+c.DateKey()] = c
	}
	return m
}

func (m *memStore) Closings(_ context.Context, scope Scope, r Range) ([]Closing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Closing
	for _, c := range m.closings {
		if c.Scope == scope && r.Contains(c.BusinessDate) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) LatestBefore(_ context.Context, scope Scope, day time.Time) (*Closing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []Closing
	for _, c := range m.closings {
		if c.Scope == scope && Day(c.BusinessDate).Before(Day(day)) {
			candidates = append(candidates, c)
		}
	}
	latest, ok := LatestClosing(candidates)
	if !ok {
		return nil, nil
	}
	return &latest, nil
}

func (m *memStore) Upsert(_ context.Context, c Closing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	m.closings[c.Scope.String()+"|"+c.DateKey()] = c
	return nil
}

var testScope = Scope{AccountCode: "ACC1", RetailCode: "RET1"}

func testModes() []PaymentMode {
	return []PaymentMode{
		{ID: "1", Name: "Cash", DisplayOrder: 1, IsActive: true},
		{ID: "2", Name: "Card", DisplayOrder: 2, IsActive: true},
		{ID: "3", Name: "UPI", DisplayOrder: 3, IsActive: true},
		{ID: "4", Name: "Cheque", DisplayOrder: 4, IsActive: false},
	}
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustRange(from, to string) Range {
	r, err := ParseRange(from, to)
	if err != nil {
		panic(err)
	}
	return r
}
