package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Sujan-Raj-1701/Gympro-sub001/settlement"
)

// scopeQuery binds the account/retail pair every endpoint is scoped by
type scopeQuery struct {
	Account string `form:"account" json:"account" binding:"required"`
	Retail  string `form:"retail" json:"retail" binding:"required"`
}

func (q scopeQuery) scope() settlement.Scope {
	return settlement.Scope{AccountCode: q.Account, RetailCode: q.Retail}
}

// rangeQuery selects an inclusive date range; both ends default to today.
type rangeQuery struct {
	scopeQuery
	From string `form:"from" binding:"omitempty,calendar_date"`
	To   string `form:"to" binding:"omitempty,calendar_date"`
}

// summaryQuery adds the dashboard view key and the first-day opening override.
type summaryQuery struct {
	rangeQuery
	View            string `form:"view"`
	OpeningOverride string `form:"opening_override" binding:"omitempty,numeric"`
}

// amountInput keeps a user-entered amount as text so blank can be told apart
// from zero. JSON numbers and strings are both accepted.
type amountInput string

func (a *amountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or string: %w", err)
	}
	*a = amountInput(n.String())
	return nil
}

// closeDayRequest is the body of the preview and close endpoints
type closeDayRequest struct {
	Account                string           `json:"account" binding:"required"`
	Retail                 string           `json:"retail" binding:"required"`
	Date                   string           `json:"date" binding:"required,calendar_date"`
	WithdrawalAmount       amountInput      `json:"withdrawal_amount"`
	OpeningBalanceOverride *decimal.Decimal `json:"opening_balance_override"`
	ClosedBy               string           `json:"closed_by"`
}

func (r closeDayRequest) toCloseRequest() (settlement.CloseRequest, error) {
	date, err := settlement.ParseDate(r.Date)
	if err != nil {
		return settlement.CloseRequest{}, err
	}
	return settlement.CloseRequest{
		Scope:           settlement.Scope{AccountCode: r.Account, RetailCode: r.Retail},
		Date:            date,
		Withdrawal:      string(r.WithdrawalAmount),
		OpeningOverride: r.OpeningBalanceOverride,
		ClosedBy:        r.ClosedBy,
	}, nil
}

// historyResponse lists closed days of a range
type historyResponse struct {
	Scope    settlement.Scope     `json:"scope"`
	From     string               `json:"from"`
	To       string               `json:"to"`
	Closings []settlement.Closing `json:"closings"`
}
