package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/janneh/batteryctl-go/convert"
	"github.com/janneh/batteryctl-go/types"
	"github.com/janneh/batteryctl-go/types/maybe"
)

func (d *Database) AppendHistory(ctx context.Context, p types.HistoryPoint) error {
	d.logger.Debug("saving history point",
		"timestamp", p.Timestamp,
		"soc", p.SocPercent,
		"price", p.Price,
		"grid_power_w", p.GridPowerW,
		"solar_power_w", p.SolarPowerW)

	_, err := d.write.ExecContext(ctx, `
		INSERT INTO history (timestamp, soc_percent, price, grid_power_w, solar_power_w)
		VALUES (?, ?, ?, ?, ?)`,
		p.Timestamp.UTC().Format(time.RFC3339),
		convert.TwoDecimals(p.SocPercent),
		maybeToPtr(p.Price),
		maybeToPtr(p.GridPowerW),
		maybeToPtr(p.SolarPowerW))
	if err != nil {
		return fmt.Errorf("saving history point: %w", err)
	}

	return nil
}

// GetHistoryTail returns up to limit points, newest first.
func (d *Database) GetHistoryTail(ctx context.Context, limit int) ([]types.HistoryPoint, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := d.read.QueryContext(ctx, `
		SELECT timestamp, soc_percent, price, grid_power_w, solar_power_w
		FROM history
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching history tail: %w", err)
	}
	defer rows.Close()

	return scanHistoryPoints(rows)
}

// GetHistorySince returns all points at or after the given time, oldest
// first, as the backtest estimator expects them.
func (d *Database) GetHistorySince(ctx context.Context, since time.Time) ([]types.HistoryPoint, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT timestamp, soc_percent, price, grid_power_w, solar_power_w
		FROM history
		WHERE timestamp >= ?
		ORDER BY timestamp ASC`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("fetching history since %s: %w", since, err)
	}
	defer rows.Close()

	return scanHistoryPoints(rows)
}

func (d *Database) PurgeHistory(ctx context.Context, retentionDays int) error {
	return d.purgeTable(ctx, "history", retentionDays)
}

func scanHistoryPoints(rows *sql.Rows) ([]types.HistoryPoint, error) {
	var points []types.HistoryPoint
	for rows.Next() {
		var p types.HistoryPoint
		var ts string
		var price, gridPowerW, solarPowerW *float64
		if err := rows.Scan(&ts, &p.SocPercent, &price, &gridPowerW, &solarPowerW); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing history timestamp: %w", err)
		}
		p.Timestamp = t
		p.Price = maybe.FromPtr(price)
		p.GridPowerW = maybe.FromPtr(gridPowerW)
		p.SolarPowerW = maybe.FromPtr(solarPowerW)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}

	return points, nil
}

func maybeToPtr(m maybe.Maybe[float64]) *float64 {
	if !m.IsValid() {
		return nil
	}
	v := m.Value()
	return &v
}
