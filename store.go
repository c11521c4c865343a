package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Sujan-Raj-1701/Gympro-sub001/settlement"
)

// pgStore reads upstream rows and persists closed days in PostgreSQL.
type pgStore struct {
	db *sql.DB
}

func newPGStore(db *sql.DB) *pgStore {
	return &pgStore{db: db}
}

const scopedRange = `
	WHERE account_code = $1 AND retail_code = $2
	  AND COALESCE(payment_date, created_at, updated_at) >= $3::date
	  AND COALESCE(payment_date, created_at, updated_at) < ($4::date + 1)
`

func (s *pgStore) AppointmentRows(ctx context.Context, scope settlement.Scope, r settlement.Range) ([]settlement.Row, error) {
	query := `
		SELECT appointment_id, amount, payment_mode_id::text AS payment_mode_id, status,
		       payment_date, created_at, updated_at
		FROM appointment_transactions` + scopedRange + `ORDER BY id`
	return s.queryRows(ctx, query, scope, r)
}

func (s *pgStore) BillingRows(ctx context.Context, scope settlement.Scope, r settlement.Range) ([]settlement.Row, error) {
	query := `
		SELECT invoice_id, amount, payment_mode_id::text AS payment_mode_id, status,
		       payment_date, created_at, updated_at
		FROM billing_transactions` + scopedRange + `ORDER BY invoice_id, id`
	return s.queryRows(ctx, query, scope, r)
}

func (s *pgStore) IncomeExpenseRows(ctx context.Context, scope settlement.Scope, r settlement.Range) ([]settlement.Row, error) {
	// entry_date is the business date of a manual entry
	query := `
		SELECT id, type, amount, payment_mode_id::text AS payment_mode_id, payment_date, created_at, updated_at
		FROM (
			SELECT id, account_code, retail_code, type, amount, payment_mode_id,
			       entry_date::timestamp AS payment_date, created_at, updated_at
			FROM income_expenses
		) e` + scopedRange + `ORDER BY id`
	return s.queryRows(ctx, query, scope, r)
}

func (s *pgStore) queryRows(ctx context.Context, query string, scope settlement.Scope, r settlement.Range) ([]settlement.Row, error) {
	rows, err := s.db.QueryContext(ctx, query,
		scope.AccountCode, scope.RetailCode,
		r.From.Format(settlement.DateLayout), r.To.Format(settlement.DateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// ensure empty array ([]) instead of null when no rows
	out := make([]settlement.Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(settlement.Row, len(cols))
		for i, col := range cols {
			row[col] = wallClock(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// wallClock reinterprets TIMESTAMP values, which pgx hands back in UTC, as
// local wall-clock times.
func wallClock(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
}

func (s *pgStore) PaymentModes(ctx context.Context, scope settlement.Scope) ([]settlement.PaymentMode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, name, display_order, is_active
		FROM payment_modes
		WHERE account_code = $1 AND retail_code = $2
		ORDER BY display_order, id
	`, scope.AccountCode, scope.RetailCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modes := make([]settlement.PaymentMode, 0)
	for rows.Next() {
		var m settlement.PaymentMode
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayOrder, &m.IsActive); err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, rows.Err()
}

const closingColumns = `
	id, account_code, retail_code, business_date::text, opening_balance, total_income, total_expenses,
	net_amount, cash_income, cash_expenses, cash_available, withdrawal_amount, next_day_opening_balance,
	variance, appointment_count, billing_count, paymode_lines, closed_by, closed_at
`

func (s *pgStore) Closings(ctx context.Context, scope settlement.Scope, r settlement.Range) ([]settlement.Closing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+closingColumns+`
		FROM settlements
		WHERE account_code = $1 AND retail_code = $2
		  AND business_date BETWEEN $3::date AND $4::date
		ORDER BY business_date
	`, scope.AccountCode, scope.RetailCode, r.From.Format(settlement.DateLayout), r.To.Format(settlement.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	closings := make([]settlement.Closing, 0)
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		closings = append(closings, *c)
	}
	return closings, rows.Err()
}

func (s *pgStore) LatestBefore(ctx context.Context, scope settlement.Scope, day time.Time) (*settlement.Closing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+closingColumns+`
		FROM settlements
		WHERE account_code = $1 AND retail_code = $2 AND business_date < $3::date
		ORDER BY business_date DESC
		LIMIT 1
	`, scope.AccountCode, scope.RetailCode, day.Format(settlement.DateLayout))
	c, err := scanClosing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClosing(row rowScanner) (*settlement.Closing, error) {
	var (
		c     settlement.Closing
		date  string
		lines []byte
	)
	err := row.Scan(
		&c.ID, &c.Scope.AccountCode, &c.Scope.RetailCode, &date, &c.OpeningBalance, &c.TotalIncome, &c.TotalExpenses,
		&c.NetAmount, &c.CashIncome, &c.CashExpenses, &c.CashAvailable, &c.WithdrawalAmount, &c.NextDayOpeningBalance,
		&c.Variance, &c.AppointmentCount, &c.BillingCount, &lines, &c.ClosedBy, &c.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.BusinessDate, err = settlement.ParseDate(date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &c.PaymodeLines); err != nil {
		return nil, fmt.Errorf("decode paymode lines for %s: %w", date, err)
	}
	return &c, nil
}

// Upsert writes the closed day. Concurrent closes of one day are not
// arbitrated here: the last write wins.
func (s *pgStore) Upsert(ctx context.Context, c settlement.Closing) error {
	lines, err := json.Marshal(c.PaymodeLines)
	if err != nil {
		return fmt.Errorf("encode paymode lines: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlements (
			id, account_code, retail_code, business_date, opening_balance, total_income, total_expenses,
			net_amount, cash_income, cash_expenses, cash_available, withdrawal_amount, next_day_opening_balance,
			variance, appointment_count, billing_count, paymode_lines, closed_by, closed_at
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17::jsonb, $18, $19)
		ON CONFLICT (account_code, retail_code, business_date) DO UPDATE SET
			opening_balance = EXCLUDED.opening_balance,
			total_income = EXCLUDED.total_income,
			total_expenses = EXCLUDED.total_expenses,
			net_amount = EXCLUDED.net_amount,
			cash_income = EXCLUDED.cash_income,
			cash_expenses = EXCLUDED.cash_expenses,
			cash_available = EXCLUDED.cash_available,
			withdrawal_amount = EXCLUDED.withdrawal_amount,
			next_day_opening_balance = EXCLUDED.next_day_opening_balance,
			variance = EXCLUDED.variance,
			appointment_count = EXCLUDED.appointment_count,
			billing_count = EXCLUDED.billing_count,
			paymode_lines = EXCLUDED.paymode_lines,
			closed_by = EXCLUDED.closed_by,
			closed_at = EXCLUDED.closed_at
	`,
		c.ID, c.Scope.AccountCode, c.Scope.RetailCode, c.DateKey(), c.OpeningBalance, c.TotalIncome, c.TotalExpenses,
		c.NetAmount, c.CashIncome, c.CashExpenses, c.CashAvailable, c.WithdrawalAmount, c.NextDayOpeningBalance,
		c.Variance, c.AppointmentCount, c.BillingCount, string(lines), c.ClosedBy, c.ClosedAt,
	)
	return err
}

// cachedSources caches the payment-mode catalog in Redis.
type cachedSources struct {
	settlement.SourceReader
	redis  *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

func catalogKey(scope settlement.Scope) string {
	return fmt.Sprintf("payment_modes:%s:%s", scope.AccountCode, scope.RetailCode)
}

func (s *cachedSources) PaymentModes(ctx context.Context, scope settlement.Scope) ([]settlement.PaymentMode, error) {
	var modes []settlement.PaymentMode
	if ok, err := getCachedObject(ctx, s.redis, catalogKey(scope), &modes); err == nil && ok {
		return modes, nil
	} else if err != nil {
		s.logger.WithError(err).Warn("payment mode cache read failed")
	}

	modes, err := s.SourceReader.PaymentModes(ctx, scope)
	if err != nil {
		return nil, err
	}
	if err := setCachedObject(ctx, s.redis, catalogKey(scope), modes, s.ttl); err != nil {
		s.logger.WithError(err).Warn("payment mode cache write failed")
	}
	return modes, nil
}

// cachedSettlements serves the history endpoint from a Redis hash per scope,
// keyed by range. Closings stays uncached so close-day checks see the
// database; a close drops the whole hash.
type cachedSettlements struct {
	settlement.SettlementStore
	redis  *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

func historyKey(scope settlement.Scope) string {
	return fmt.Sprintf("settlements:history:%s:%s", scope.AccountCode, scope.RetailCode)
}

func (s *cachedSettlements) History(ctx context.Context, scope settlement.Scope, r settlement.Range) ([]settlement.Closing, error) {
	if s.redis != nil {
		cached, err := s.redis.HGet(ctx, historyKey(scope), r.String()).Result()
		if err == nil {
			var closings []settlement.Closing
			if err := json.Unmarshal([]byte(cached), &closings); err == nil {
				return closings, nil
			}
		}
	}

	closings, err := s.SettlementStore.Closings(ctx, scope, r)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(closings); err == nil {
			key := historyKey(scope)
			pipe := s.redis.TxPipeline()
			pipe.HSet(ctx, key, r.String(), data)
			pipe.Expire(ctx, key, s.ttl)
			if _, err := pipe.Exec(ctx); err != nil {
				s.logger.WithError(err).Warn("settlement history cache write failed")
			}
		}
	}
	return closings, nil
}

func (s *cachedSettlements) Upsert(ctx context.Context, c settlement.Closing) error {
	if err := s.SettlementStore.Upsert(ctx, c); err != nil {
		return err
	}
	// Invalidate cache
	if s.redis != nil {
		if err := s.redis.Del(ctx, historyKey(c.Scope)).Err(); err != nil {
			s.logger.WithError(err).Warn("settlement history cache invalidation failed")
		}
	}
	return nil
}
