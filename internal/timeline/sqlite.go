package timeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// LoadSQLite reads events and correlations from a database written by the
// extraction collaborator. The connection is restricted to queries, and
// reads are retried while the writer holds the database lock.
func LoadSQLite(ctx context.Context, path string) (*Log, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var (
		raw          []rawEvent
		correlations []Correlation
	)
	err = DefaultRetryPolicy().Execute(ctx, func() error {
		var err error
		if raw, err = queryEvents(ctx, db); err != nil {
			return err
		}
		correlations, err = queryCorrelations(ctx, db)
		return err
	})
	if err != nil {
		return nil, err
	}
	return build(raw, correlations)
}

func queryEvents(ctx context.Context, db *sql.DB) ([]rawEvent, error) {
	rows, err := db.QueryContext(ctx, `SELECT event_id, timestamp, event_type, metadata FROM events ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("%w: query events: %v", ErrMissingEvents, err)
	}
	defer rows.Close()

	var raw []rawEvent
	for rows.Next() {
		var (
			id, kind string
			ts       float64
			meta     sql.NullString
		)
		if err := rows.Scan(&id, &ts, &kind, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrMalformed, err)
		}
		if math.IsNaN(ts) || math.IsInf(ts, 0) {
			return nil, fmt.Errorf("%w: event %s has non-finite timestamp", ErrMalformed, id)
		}
		r := rawEvent{id: id, kind: kind, ts: int64(ts)}
		if meta.Valid {
			r.meta = json.RawMessage(meta.String)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return raw, nil
}

func queryCorrelations(ctx context.Context, db *sql.DB) ([]Correlation, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'correlations'`).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("inspect schema: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `SELECT file_event_id, milestone_event_id, correlation_strength, correlation_type FROM correlations`)
	if err != nil {
		return nil, fmt.Errorf("query correlations: %w", err)
	}
	defer rows.Close()

	var out []Correlation
	for rows.Next() {
		var (
			c    Correlation
			kind sql.NullString
		)
		if err := rows.Scan(&c.FileEventID, &c.MilestoneEventID, &c.Strength, &kind); err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		c.Strength = clamp01(c.Strength)
		c.Kind = kind.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read correlations: %w", err)
	}
	return out, nil
}
