// Package caredesk implements the support-ticket capability against the
// support database.
package caredesk

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

type ticketRow struct {
	TicketID        int64          `bun:"ticket_id"`
	OrderID         sql.NullInt64  `bun:"order_id"`
	IssueType       string         `bun:"issue_type"`
	Title           string         `bun:"title"`
	Description     sql.NullString `bun:"description"`
	Priority        string         `bun:"priority"`
	Status          string         `bun:"status"`
	CreatedAt       time.Time      `bun:"created_at"`
	ResolvedAt      sql.NullTime   `bun:"resolved_at"`
	ResolutionNotes sql.NullString `bun:"resolution_notes"`
}

func (r ticketRow) toRow() contractx.Row {
	row := contractx.Row{
		"ticket_id":  r.TicketID,
		"issue_type": r.IssueType,
		"title":      r.Title,
		"priority":   r.Priority,
		"status":     r.Status,
		"created_at": r.CreatedAt,
	}
	if r.OrderID.Valid {
		row["order_id"] = r.OrderID.Int64
	}
	if r.Description.Valid {
		row["description"] = r.Description.String
	}
	if r.ResolvedAt.Valid {
		row["resolved_at"] = r.ResolvedAt.Time
	}
	if r.ResolutionNotes.Valid {
		row["resolution_notes"] = r.ResolutionNotes.String
	}
	return row
}

// TicketLookup returns the support tickets linked to an order, newest first.
// It is the canonical source for ticket_id.
type TicketLookup struct {
	capabilitiesx.Base
	db bun.IDB
}

var _ contractx.Capability = (*TicketLookup)(nil)

func NewTicketLookup(desc registryx.Descriptor, db bun.IDB) *TicketLookup {
	return &TicketLookup{Base: capabilitiesx.NewBase(desc), db: db}
}

func (c *TicketLookup) Invoke(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
	order, ok := params.Get(entityx.KindOrderID)
	if !ok {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: order_id is required", contractx.ErrValidation))
	}
	orderID, err := strconv.ParseInt(order.Value, 10, 64)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: order id %q is not numeric", contractx.ErrValidation, order.Value))
	}

	var rows []ticketRow
	err = c.db.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("t.ticket_id, t.order_id, t.issue_type, t.title, t.description").
		ColumnExpr("t.priority, t.status, t.created_at, t.resolved_at, t.resolution_notes").
		Where("t.order_id = ?", orderID).
		OrderExpr("t.created_at DESC").
		Scan(ctx, &rows)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("ticket lookup: %w", err))
	}
	if len(rows) == 0 {
		return capabilitiesx.NotFound(c.Name())
	}

	payload := make([]contractx.Row, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, r.toRow())
	}

	produced := capabilitiesx.Produced(c.Name(), map[entityx.Kind]string{
		entityx.KindTicketID: strconv.FormatInt(rows[0].TicketID, 10),
	})
	return capabilitiesx.OK(c.Name(), payload, produced)
}
