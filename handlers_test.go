package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Sujan-Raj-1701/Gympro-sub001/settlement"
)

type okPinger struct{ err error }

func (p okPinger) PingContext(context.Context) error { return p.err }

// memBackend is an in-memory stand-in for pgStore.
type memBackend struct {
	mu        sync.Mutex
	modes     []settlement.PaymentMode
	billings  []settlement.Row
	entries   []settlement.Row
	closings  []settlement.Closing
	upsertErr error
}

func (m *memBackend) AppointmentRows(context.Context, settlement.Scope, settlement.Range) ([]settlement.Row, error) {
	return nil, nil
}

func (m *memBackend) BillingRows(context.Context, settlement.Scope, settlement.Range) ([]settlement.Row, error) {
	return m.billings, nil
}

func (m *memBackend) IncomeExpenseRows(context.Context, settlement.Scope, settlement.Range) ([]settlement.Row, error) {
	return m.entries, nil
}

func (m *memBackend) PaymentModes(context.Context, settlement.Scope) ([]settlement.PaymentMode, error) {
	return m.modes, nil
}

func (m *memBackend) Closings(_ context.Context, scope settlement.Scope, r settlement.Range) ([]settlement.Closing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []settlement.Closing
	for _, c := range m.closings {
		if c.Scope == scope && r.Contains(c.BusinessDate) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memBackend) LatestBefore(_ context.Context, scope settlement.Scope, day time.Time) (*settlement.Closing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *settlement.Closing
	for i, c := range m.closings {
		if c.Scope != scope || !c.BusinessDate.Before(day) {
			continue
		}
		if latest == nil || c.BusinessDate.After(latest.BusinessDate) {
			latest = &m.closings[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (m *memBackend) Upsert(_ context.Context, c settlement.Closing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.closings = append(m.closings, c)
	return nil
}

var storeScope = settlement.Scope{AccountCode: "ACC1", RetailCode: "RET1"}

func newBackend() *memBackend {
	return &memBackend{
		modes: []settlement.PaymentMode{
			{ID: "1", Name: "Cash", DisplayOrder: 1, IsActive: true},
			{ID: "2", Name: "Card", DisplayOrder: 2, IsActive: true},
		},
		billings: []settlement.Row{
			{"invoice_id": "INV-1", "payment_mode_id": "1", "amount": "5000", "payment_date": "2026-03-02 10:00:00"},
			{"invoice_id": "INV-1", "payment_mode_id": "2", "amount": "450", "payment_date": "2026-03-02 10:00:00"},
		},
		entries: []settlement.Row{
			{"id": 7, "type": "outflow", "amount": "200", "payment_mode_id": "1", "entry_date": "2026-03-02"},
		},
		closings: []settlement.Closing{{
			Scope:                 storeScope,
			BusinessDate:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local),
			NextDayOpeningBalance: decimal.NewFromInt(1000),
			ClosedBy:              "manager",
		}},
	}
}

func setupRouter(t *testing.T, backend *memBackend) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, registerValidators())

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := newServer(okPinger{}, backend, nil, RedisConfig{}, logger)
	srv.today = func() time.Time { return time.Date(2026, 3, 2, 18, 0, 0, 0, time.Local) }

	r := gin.New()
	srv.routes(r)
	return r
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type summaryBody struct {
	Date           string                     `json:"date"`
	OpeningBalance decimal.Decimal            `json:"opening_balance"`
	TotalIncome    decimal.Decimal            `json:"total_income"`
	CashIncome     decimal.Decimal            `json:"cash_income"`
	CashExpenses   decimal.Decimal            `json:"cash_expenses"`
	PaymodeAmounts map[string]decimal.Decimal `json:"paymode_amounts"`
	Closed         bool                       `json:"closed"`
}

type reportBody struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Summaries []summaryBody     `json:"summaries"`
	Errors    map[string]string `json:"errors"`
}

func TestHealthCheck(t *testing.T) {
	r := setupRouter(t, newBackend())
	w := doRequest(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "healthy")
}

func TestGetPaymentModesRequiresScope(t *testing.T) {
	r := setupRouter(t, newBackend())

	w := doRequest(r, http.MethodGet, "/api/payment-modes?account=ACC1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/payment-modes?account=ACC1&retail=RET1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var modes []settlement.PaymentMode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &modes))
	require.Len(t, modes, 2)
}

func TestGetSummaryDefaultsToToday(t *testing.T) {
	r := setupRouter(t, newBackend())

	w := doRequest(r, http.MethodGet, "/api/settlements/summary?account=ACC1&retail=RET1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report reportBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, "2026-03-02", report.From)
	require.Equal(t, "2026-03-02", report.To)
	require.Len(t, report.Summaries, 1)

	day := report.Summaries[0]
	require.Equal(t, "2026-03-02", day.Date)
	require.True(t, day.OpeningBalance.Equal(decimal.NewFromInt(1000)))
	require.True(t, day.TotalIncome.Equal(decimal.NewFromInt(5450)))
	require.True(t, day.CashIncome.Equal(decimal.NewFromInt(5000)))
	require.True(t, day.CashExpenses.Equal(decimal.NewFromInt(200)))
	require.True(t, day.PaymodeAmounts["2"].Equal(decimal.NewFromInt(450)))
	require.Empty(t, report.Errors)
}

func TestGetSummaryOpeningOverride(t *testing.T) {
	r := setupRouter(t, newBackend())

	w := doRequest(r, http.MethodGet, "/api/settlements/summary?account=ACC1&retail=RET1&from=2026-03-02&to=2026-03-03&opening_override=250.50&view=dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report reportBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Summaries, 2)
	require.True(t, report.Summaries[0].OpeningBalance.Equal(decimal.RequireFromString("250.50")))
	// 250.50 + 5450 - 200
	require.True(t, report.Summaries[1].OpeningBalance.Equal(decimal.RequireFromString("5500.50")))
}

func TestGetSummaryRejectsBadRange(t *testing.T) {
	r := setupRouter(t, newBackend())

	w := doRequest(r, http.MethodGet, "/api/settlements/summary?account=ACC1&retail=RET1&from=2026-03-05&to=2026-03-01", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/settlements/summary?account=ACC1&retail=RET1&from=03/01/2026", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseDay(t *testing.T) {
	backend := newBackend()
	r := setupRouter(t, backend)

	w := doRequest(r, http.MethodPost, "/api/settlements/close", gin.H{
		"account":           "ACC1",
		"retail":            "RET1",
		"date":              "2026-03-02",
		"withdrawal_amount": 5000,
		"closed_by":         "manager",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		State          settlement.DayState       `json:"state"`
		Reconciliation settlement.Reconciliation `json:"reconciliation"`
		Closing        *settlement.Closing       `json:"closing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, settlement.StateClosed, res.State)
	require.True(t, res.Reconciliation.CashAvailable.Equal(decimal.NewFromInt(5800)))
	require.True(t, res.Reconciliation.NextDayOpeningBalance.Equal(decimal.NewFromInt(800)))
	require.NotNil(t, res.Closing)
	require.Len(t, backend.closings, 2)

	w = doRequest(r, http.MethodPost, "/api/settlements/close", gin.H{
		"account":           "ACC1",
		"retail":            "RET1",
		"date":              "2026-03-02",
		"withdrawal_amount": "100",
		"closed_by":         "manager",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(r, http.MethodGet, "/api/settlements/history?account=ACC1&retail=RET1&from=2026-03-01&to=2026-03-02", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Closings, 2)
}

func TestCloseDayValidation(t *testing.T) {
	r := setupRouter(t, newBackend())

	tests := []struct {
		name string
		body gin.H
		code int
	}{
		{"missing date", gin.H{"account": "ACC1", "retail": "RET1", "withdrawal_amount": "1", "closed_by": "m"}, http.StatusBadRequest},
		{"bad date", gin.H{"account": "ACC1", "retail": "RET1", "date": "2026-02-30", "withdrawal_amount": "1", "closed_by": "m"}, http.StatusBadRequest},
		{"blank withdrawal", gin.H{"account": "ACC1", "retail": "RET1", "date": "2026-03-02", "withdrawal_amount": " ", "closed_by": "m"}, http.StatusBadRequest},
		{"null withdrawal", gin.H{"account": "ACC1", "retail": "RET1", "date": "2026-03-02", "withdrawal_amount": nil, "closed_by": "m"}, http.StatusBadRequest},
		{"non numeric withdrawal", gin.H{"account": "ACC1", "retail": "RET1", "date": "2026-03-02", "withdrawal_amount": "ten", "closed_by": "m"}, http.StatusBadRequest},
		{"missing closed_by", gin.H{"account": "ACC1", "retail": "RET1", "date": "2026-03-02", "withdrawal_amount": "1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, "/api/settlements/close", tt.body)
			require.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestCloseDayPersistFailure(t *testing.T) {
	backend := newBackend()
	backend.upsertErr = errors.New("disk full")
	r := setupRouter(t, backend)

	w := doRequest(r, http.MethodPost, "/api/settlements/close", gin.H{
		"account": "ACC1", "retail": "RET1", "date": "2026-03-02", "withdrawal_amount": "100", "closed_by": "manager",
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), settlement.ErrPersist.Error())
	require.NotContains(t, w.Body.String(), "disk full")
}

func TestPreviewClose(t *testing.T) {
	backend := newBackend()
	r := setupRouter(t, backend)

	w := doRequest(r, http.MethodPost, "/api/settlements/preview", gin.H{
		"account": "ACC1", "retail": "RET1", "date": "2026-03-02", "withdrawal_amount": "9000",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"state":"validating"`)
	require.Contains(t, w.Body.String(), `"clamped":true`)
	require.Len(t, backend.closings, 1)
}

func TestAmountInputUnmarshal(t *testing.T) {
	var req closeDayRequest
	require.NoError(t, json.Unmarshal([]byte(`{"withdrawal_amount": 12.50}`), &req))
	require.Equal(t, amountInput("12.50"), req.WithdrawalAmount)

	require.NoError(t, json.Unmarshal([]byte(`{"withdrawal_amount": "1,200"}`), &req))
	require.Equal(t, amountInput("1,200"), req.WithdrawalAmount)

	require.NoError(t, json.Unmarshal([]byte(`{"withdrawal_amount": null}`), &req))
	require.Equal(t, amountInput(""), req.WithdrawalAmount)

	require.Error(t, json.Unmarshal([]byte(`{"withdrawal_amount": true}`), &req))
}
