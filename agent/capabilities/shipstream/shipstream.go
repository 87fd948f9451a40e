// Package shipstream implements the logistics capability against the
// shipment database: shipment status plus its tracking event history for a
// resolved order.
package shipstream

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

type shipmentRow struct {
	ShipmentID       int64          `bun:"shipment_id"`
	OrderID          int64          `bun:"order_id"`
	TrackingNumber   string         `bun:"tracking_number"`
	ShipmentStatus   string         `bun:"shipment_status"`
	EstimatedArrival sql.NullTime   `bun:"estimated_arrival"`
	ActualArrival    sql.NullTime   `bun:"actual_arrival"`
	CarrierName      string         `bun:"carrier_name"`
	OriginLocation   sql.NullString `bun:"origin_location"`
	OriginCity       sql.NullString `bun:"origin_city"`
}

type trackingEventRow struct {
	Timestamp    time.Time      `bun:"timestamp"`
	StatusUpdate string         `bun:"status_update"`
	Location     string         `bun:"location"`
	EventType    string         `bun:"event_type"`
	Notes        sql.NullString `bun:"notes"`
}

// Lookup returns the shipment for an order together with its tracking
// events, newest event first. It is the canonical source for
// tracking_number.
type Lookup struct {
	capabilitiesx.Base
	db bun.IDB
}

var _ contractx.Capability = (*Lookup)(nil)

func NewLookup(desc registryx.Descriptor, db bun.IDB) *Lookup {
	return &Lookup{Base: capabilitiesx.NewBase(desc), db: db}
}

func (c *Lookup) Invoke(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
	order, ok := params.Get(entityx.KindOrderID)
	if !ok {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: order_id is required", contractx.ErrValidation))
	}
	orderID, err := strconv.ParseInt(order.Value, 10, 64)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("%w: order id %q is not numeric", contractx.ErrValidation, order.Value))
	}

	var shipments []shipmentRow
	err = c.db.NewSelect().
		TableExpr("shipments AS s").
		ColumnExpr("s.shipment_id, s.order_id, s.tracking_number, s.shipment_status").
		ColumnExpr("s.estimated_arrival, s.actual_arrival, s.carrier_name").
		ColumnExpr("w.location AS origin_location, w.city AS origin_city").
		Join("LEFT JOIN warehouses AS w ON s.origin_warehouse_id = w.warehouse_id").
		Where("s.order_id = ?", orderID).
		Scan(ctx, &shipments)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("shipment lookup: %w", err))
	}
	if len(shipments) == 0 {
		return capabilitiesx.NotFound(c.Name())
	}

	shipment := shipments[0]

	var events []trackingEventRow
	err = c.db.NewSelect().
		TableExpr("tracking_events AS te").
		ColumnExpr("te.timestamp, te.status_update, te.location, te.event_type, te.notes").
		Where("te.shipment_id = ?", shipment.ShipmentID).
		OrderExpr("te.timestamp DESC").
		Scan(ctx, &events)
	if err != nil {
		return capabilitiesx.Failure(c.Name(), fmt.Errorf("tracking events: %w", err))
	}

	row := contractx.Row{
		"shipment_id":     shipment.ShipmentID,
		"order_id":        shipment.OrderID,
		"tracking_number": shipment.TrackingNumber,
		"shipment_status": shipment.ShipmentStatus,
		"carrier_name":    shipment.CarrierName,
		"tracking_events": eventRows(events),
	}
	if shipment.EstimatedArrival.Valid {
		row["estimated_arrival"] = shipment.EstimatedArrival.Time
	}
	if shipment.ActualArrival.Valid {
		row["actual_arrival"] = shipment.ActualArrival.Time
	}
	if shipment.OriginLocation.Valid {
		row["origin_location"] = shipment.OriginLocation.String
	}
	if shipment.OriginCity.Valid {
		row["origin_city"] = shipment.OriginCity.String
	}
	if len(events) > 0 {
		row["current_location"] = events[0].Location
	}

	produced := capabilitiesx.Produced(c.Name(), map[entityx.Kind]string{
		entityx.KindTrackingNumber: shipment.TrackingNumber,
	})
	return capabilitiesx.OK(c.Name(), []contractx.Row{row}, produced)
}

func eventRows(events []trackingEventRow) []contractx.Row {
	out := make([]contractx.Row, 0, len(events))
	for _, e := range events {
		row := contractx.Row{
			"timestamp":     e.Timestamp,
			"status_update": e.StatusUpdate,
			"location":      e.Location,
			"event_type":    e.EventType,
		}
		if e.Notes.Valid {
			row["notes"] = e.Notes.String
		}
		out = append(out, row)
	}
	return out
}
