package main

import (
	"database/sql"
	"embed"
	"fmt"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Demo account/retail pair used by -seed-demo.
const (
	demoAccountCode = "DEMO"
	demoRetailCode  = "MAIN"
)

const seedPaymentModesSQL = `
	INSERT INTO payment_modes (account_code, retail_code, name, display_order, is_active) VALUES
		($1, $2, 'Cash', 1, TRUE),
		($1, $2, 'Card', 2, TRUE),
		($1, $2, 'UPI', 3, TRUE),
		($1, $2, 'Cheque', 4, FALSE)
	ON CONFLICT (account_code, retail_code, name) DO NOTHING;
`

func seedDefaultPaymentModes(db *sql.DB, accountCode, retailCode string) error {
	if _, err := db.Exec(seedPaymentModesSQL, accountCode, retailCode); err != nil {
		return fmt.Errorf("failed to seed payment modes: %w", err)
	}
	return nil
}

// Seed a week of demo appointments, invoices and income/expense entries.
// Idempotent: will only run if the demo scope has no billing rows yet.
func seedDemoData(db *sql.DB) error {
	if err := seedDefaultPaymentModes(db, demoAccountCode, demoRetailCode); err != nil {
		return err
	}

	var cnt int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM billing_transactions WHERE account_code = $1 AND retail_code = $2`,
		demoAccountCode, demoRetailCode,
	).Scan(&cnt); err != nil {
		return fmt.Errorf("checking billing count: %w", err)
	}
	if cnt > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const mode = `(SELECT id FROM payment_modes WHERE account_code=$1 AND retail_code=$2 AND name=%s LIMIT 1)`
	cash := fmt.Sprintf(mode, "'Cash'")
	card := fmt.Sprintf(mode, "'Card'")
	upi := fmt.Sprintf(mode, "'UPI'")

	demoAppointments := `
	INSERT INTO appointment_transactions (account_code, retail_code, appointment_id, amount, payment_mode_id, status, payment_date) VALUES
	($1, $2, 'APT-1001', 800.00, ` + cash + `, 'settled', CURRENT_DATE - INTERVAL '6 days' + INTERVAL '10 hours'),
	($1, $2, 'APT-1002', 1200.00, ` + upi + `, 'settled', CURRENT_DATE - INTERVAL '5 days' + INTERVAL '11 hours'),
	($1, $2, 'APT-1003', 500.00, ` + cash + `, 'advance', CURRENT_DATE - INTERVAL '3 days' + INTERVAL '15 hours'),
	($1, $2, 'APT-1004', 650.00, ` + card + `, 'completed', CURRENT_DATE - INTERVAL '1 days' + INTERVAL '12 hours')
	`
	if _, err := tx.Exec(demoAppointments, demoAccountCode, demoRetailCode); err != nil {
		return fmt.Errorf("seeding demo appointments: %w", err)
	}

	// INV-2002 and INV-2005 are split across two payment modes.
	demoBillings := `
	INSERT INTO billing_transactions (account_code, retail_code, invoice_id, amount, payment_mode_id, status, payment_date) VALUES
	($1, $2, 'INV-2001', 1450.00, ` + cash + `, 'settled', CURRENT_DATE - INTERVAL '6 days' + INTERVAL '13 hours'),
	($1, $2, 'INV-2002', 300.00, ` + cash + `, 'settled', CURRENT_DATE - INTERVAL '4 days' + INTERVAL '17 hours'),
	($1, $2, 'INV-2002', 200.00, ` + card + `, 'settled', CURRENT_DATE - INTERVAL '4 days' + INTERVAL '17 hours'),
	($1, $2, 'INV-2003', 2200.00, ` + upi + `, 'settled', CURRENT_DATE - INTERVAL '2 days' + INTERVAL '16 hours'),
	($1, $2, 'INV-2004', 999.00, ` + cash + `, 'partial', CURRENT_DATE - INTERVAL '1 days' + INTERVAL '18 hours'),
	($1, $2, 'INV-2005', 1000.00, ` + cash + `, 'settled', CURRENT_DATE + INTERVAL '10 hours'),
	($1, $2, 'INV-2005', 750.00, ` + card + `, 'settled', CURRENT_DATE + INTERVAL '10 hours')
	`
	if _, err := tx.Exec(demoBillings, demoAccountCode, demoRetailCode); err != nil {
		return fmt.Errorf("seeding demo billings: %w", err)
	}

	demoEntries := `
	INSERT INTO income_expenses (account_code, retail_code, type, description, amount, payment_mode_id, entry_date) VALUES
	($1, $2, 'expense', 'Hair products restock', 450.00, ` + cash + `, CURRENT_DATE - INTERVAL '5 days'),
	($1, $2, 'inflow', 'Product sale', 320.00, ` + cash + `, CURRENT_DATE - INTERVAL '3 days'),
	($1, $2, 'outflow', 'Tea and snacks', 120.00, ` + cash + `, CURRENT_DATE - INTERVAL '2 days'),
	($1, $2, 'expense', 'Electricity bill', 1800.00, ` + upi + `, CURRENT_DATE - INTERVAL '1 days'),
	($1, $2, 'income', 'Gift card sale', 500.00, ` + card + `, CURRENT_DATE)
	`
	if _, err := tx.Exec(demoEntries, demoAccountCode, demoRetailCode); err != nil {
		return fmt.Errorf("seeding demo income/expenses: %w", err)
	}

	return tx.Commit()
}
