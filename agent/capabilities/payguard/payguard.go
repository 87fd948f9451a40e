// Package payguard implements the payment capabilities against the payments
// database: transaction history for a resolved order, and a customer's
// wallet balance.
package payguard

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	capabilitiesx "github.com/omniretail/orchestrator/agent/capabilities"
	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	registryx "github.com/omniretail/orchestrator/agent/registry"
)

type transactionRow struct {
	TransactionID   int64          `bun:"transaction_id"`
	OrderID         sql.NullInt64  `bun:"order_id"`
	Amount          float64        `bun:"amount"`
	TransactionType string         `bun:"transaction_type"`
	Status          string         `bun:"status"`
	Timestamp       time.Time      `bun:"timestamp"`
	Description     sql.NullString `bun:"description"`
}

func (r transactionRow) toRow() contractx.Row {
	row := contractx.Row{
		"transaction_id":   r.TransactionID,
		"amount":           r.Amount,
		"transaction_type": r.TransactionType,
		"status":           r.Status,
		"timestamp":        r.Timestamp,
	}
	if r.OrderID.Valid {
		row["order_id"] = r.OrderID.Int64
	}
	if r.Description.Valid {
		row["description"] = r.Description.String
	}
	return row
}

// TransactionLookup returns every transaction recorded against an order,
// newest first. Duplicate debits surface here, which is how billing
// discrepancies are detected.
type TransactionLookup struct {
	capabilitiesx.Base
	db bun.IDB
}

var _ contractx.Capability = (*TransactionLookup)(nil)

func NewTransactionLookup(desc registryx.Descriptor, db bun.IDB) *TransactionLookup {
	return &TransactionLookup{Base: capabilitiesx.NewBase(desc), db: db}
}

func (c *TransactionLookup) Invoke(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
	order, ok := params.Get(entityx.KindOrderID)
	if !ok {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: order_id is required", contractx.ErrValidation))
	}
	orderID, err := strconv.ParseInt(order.Value, 10, 64)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: order id %q is not numeric", contractx.ErrValidation, order.Value))
	}

	var rows []transactionRow
	err = c.db.NewSelect().
		TableExpr("transactions AS t").
		ColumnExpr("t.transaction_id, t.order_id, t.amount, t.transaction_type").
		ColumnExpr("t.status, t.timestamp, t.description").
		Where("t.order_id = ?", orderID).
		OrderExpr("t.timestamp DESC").
		Scan(ctx, &rows)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("transaction lookup: %w", err))
	}
	if len(rows) == 0 {
		return capabilitiesx.NotFound(c.Name())
	}

	payload := make([]contractx.Row, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, r.toRow())
	}
	return capabilitiesx.OK(c.Name(), payload, nil)
}

// WalletBalance returns the customer's wallet.
type WalletBalance struct {
	capabilitiesx.Base
	db bun.IDB
}

var _ contractx.Capability = (*WalletBalance)(nil)

func NewWalletBalance(desc registryx.Descriptor, db bun.IDB) *WalletBalance {
	return &WalletBalance{Base: capabilitiesx.NewBase(desc), db: db}
}

type walletRow struct {
	WalletID     int64     `bun:"wallet_id"`
	UserID       int64     `bun:"user_id"`
	Balance      float64   `bun:"balance"`
	Currency     string    `bun:"currency"`
	WalletStatus string    `bun:"wallet_status"`
	LastUpdated  time.Time `bun:"last_updated"`
}

func (c *WalletBalance) Invoke(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
	user, ok := params.Get(entityx.KindUserID)
	if !ok {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: user_id is required", contractx.ErrValidation))
	}
	userID, err := strconv.ParseInt(user.Value, 10, 64)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: user id %q is not numeric", contractx.ErrValidation, user.Value))
	}

	var rows []walletRow
	err = c.db.NewSelect().
		TableExpr("wallets AS w").
		ColumnExpr("w.wallet_id, w.user_id, w.balance, w.currency, w.wallet_status, w.last_updated").
		Where("w.user_id = ?", userID).
		Scan(ctx, &rows)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("wallet lookup: %w", err))
	}
	if len(rows) == 0 {
		return capabilitiesx.NotFound(c.Name())
	}

	payload := make([]contractx.Row, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, contractx.Row{
			"wallet_id":     r.WalletID,
			"user_id":       r.UserID,
			"balance":       r.Balance,
			"currency":      r.Currency,
			"wallet_status": r.WalletStatus,
			"last_updated":  r.LastUpdated,
		})
	}
	return capabilitiesx.OK(c.Name(), payload, nil)
}
