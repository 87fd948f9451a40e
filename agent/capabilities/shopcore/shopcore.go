// Package shopcore implements the catalog capabilities against the commerce
// database: resolving a query to a concrete order or product, and listing a
// customer's recent purchases.
package shopcore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"

	capabilitiesx "github.com/omniretail/orchestrator/agent/capabilities"
	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	registryx "github.com/omniretail/orchestrator/agent/registry"
)

const lookupLimit = 10

type orderRow struct {
	OrderID      int64          `bun:"order_id"`
	ProductName  string         `bun:"product_name"`
	OrderDate    time.Time      `bun:"order_date"`
	Status       string         `bun:"status"`
	Quantity     int            `bun:"quantity"`
	TotalAmount  float64        `bun:"total_amount"`
	SpecialNotes sql.NullString `bun:"special_notes"`
}

func (r orderRow) toRow() contractx.Row {
	row := contractx.Row{
		"order_id":     r.OrderID,
		"product_name": r.ProductName,
		"order_date":   r.OrderDate,
		"status":       r.Status,
		"quantity":     r.Quantity,
		"total_amount": r.TotalAmount,
	}
	if r.SpecialNotes.Valid {
		row["special_notes"] = r.SpecialNotes.String
	}
	return row
}

// CatalogResolve resolves an order id or product name to concrete order
// records. It is the canonical source for order_id and product_name: tier-1
// capabilities depend on the ids it publishes.
type CatalogResolve struct {
	capabilitiesx.Base
	db bun.IDB
}

var _ contractx.Capability = (*CatalogResolve)(nil)

func NewCatalogResolve(desc registryx.Descriptor, db bun.IDB) *CatalogResolve {
	return &CatalogResolve{Base: capabilitiesx.NewBase(desc), db: db}
}

func (c *CatalogResolve) Invoke(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
	if v, ok := params.Get(entityx.KindOrderID); ok {
		return c.byOrderID(ctx, v.Value)
	}
	if v, ok := params.Get(entityx.KindProductName); ok {
		userID := ""
		if u, ok := params.Get(entityx.KindUserID); ok {
			userID = u.Value
		}
		return c.byProductName(ctx, v.Value, userID)
	}
	return capabilitiesx.NotFound(c.Name())
}

func (c *CatalogResolve) byOrderID(ctx context.Context, rawID string) contractx.CapabilityResult {
	orderID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: order id %q is not numeric", contractx.ErrValidation, rawID))
	}

	var rows []orderRow
	err = c.db.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr("o.order_id, p.name AS product_name, o.order_date").
		ColumnExpr("o.status, o.quantity, o.total_amount, o.special_notes").
		Join("JOIN products AS p ON o.product_id = p.product_id").
		Where("o.order_id = ?", orderID).
		Scan(ctx, &rows)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("order lookup: %w", err))
	}

	return c.resolved(rows)
}

func (c *CatalogResolve) byProductName(ctx context.Context, product, userID string) contractx.CapabilityResult {
	// The catalog stores names inconsistently hyphenated, so every
	// spacing variant of the keyword is searched.
	variants := []string{
		"%" + product + "%",
		"%" + strings.ReplaceAll(product, "-", " ") + "%",
		"%" + strings.ReplaceAll(product, " ", "-") + "%",
		"%" + strings.ReplaceAll(product, " ", "") + "%",
	}

	q := c.db.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr("o.order_id, p.name AS product_name, o.order_date").
		ColumnExpr("o.status, o.quantity, o.total_amount, o.special_notes").
		Join("JOIN products AS p ON o.product_id = p.product_id").
		Where("p.name ILIKE ? OR p.name ILIKE ? OR p.name ILIKE ? OR p.name ILIKE ?",
			variants[0], variants[1], variants[2], variants[3]).
		OrderExpr("o.order_date DESC").
		Limit(lookupLimit)

	if userID != "" {
		if uid, err := strconv.ParseInt(userID, 10, 64); err == nil {
			q = q.Where("o.user_id = ?", uid)
		}
	}

	var rows []orderRow
	if err := q.Scan(ctx, &rows); err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("product lookup: %w", err))
	}

	return c.resolved(rows)
}

func (c *CatalogResolve) resolved(rows []orderRow) contractx.CapabilityResult {
	if len(rows) == 0 {
		return capabilitiesx.NotFound(c.Name())
	}

	payload := make([]contractx.Row, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, r.toRow())
	}

	// The newest matching order is the one downstream capabilities bind to.
	produced := capabilitiesx.Produced(c.Name(), map[entityx.Kind]string{
		entityx.KindOrderID:     strconv.FormatInt(rows[0].OrderID, 10),
		entityx.KindProductName: rows[0].ProductName,
	})
	return capabilitiesx.OK(c.Name(), payload, produced)
}

// RecentOrders lists a customer's purchase history, newest first.
type RecentOrders struct {
	capabilitiesx.Base
	db bun.IDB
}

var _ contractx.Capability = (*RecentOrders)(nil)

func NewRecentOrders(desc registryx.Descriptor, db bun.IDB) *RecentOrders {
	return &RecentOrders{Base: capabilitiesx.NewBase(desc), db: db}
}

func (c *RecentOrders) Invoke(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
	user, ok := params.Get(entityx.KindUserID)
	if !ok {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: user_id is required", contractx.ErrValidation))
	}
	userID, err := strconv.ParseInt(user.Value, 10, 64)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: user id %q is not numeric", contractx.ErrValidation, user.Value))
	}

	var rows []orderRow
	err = c.db.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr("o.order_id, p.name AS product_name, o.order_date").
		ColumnExpr("o.status, o.quantity, o.total_amount, o.special_notes").
		Join("JOIN products AS p ON o.product_id = p.product_id").
		Where("o.user_id = ?", userID).
		OrderExpr("o.order_date DESC").
		Limit(20).
		Scan(ctx, &rows)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("recent orders: %w", err))
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
