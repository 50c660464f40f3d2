package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// Reader queries an index written by SQLiteIndex. It uses its own connection so it never
// waits on the writer's open transaction.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type HistoryRow struct {
	EventID int64   `json:"event_id"`
	Seq     int64   `json:"seq"`
	Time    string  `json:"time"`
	Kind    string  `json:"kind"`
	Action  string  `json:"action"`
	Anchor  *[3]int `json:"anchor,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// CoordHistory lists ownership changes that touched pos, newest first.
func (r *Reader) CoordHistory(ctx context.Context, world, kind string, pos [3]int, limit int) ([]HistoryRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.seq, e.time, e.kind, e.action, e.ax, e.ay, e.az, COALESCE(e.reason,'')
		FROM event_coords c JOIN events e ON e.id = c.event_id
		WHERE c.world = ? AND (? = '' OR c.kind = ?) AND c.x = ? AND c.y = ? AND c.z = ?
		ORDER BY e.id DESC LIMIT ?`,
		world, kind, kind, pos[0], pos[1], pos[2], limit)
	if err != nil {
		return nil, fmt.Errorf("coord history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var ax, ay, az sql.NullInt64
		if err := rows.Scan(&h.EventID, &h.Seq, &h.Time, &h.Kind, &h.Action, &ax, &ay, &az, &h.Reason); err != nil {
			return nil, err
		}
		if ax.Valid && ay.Valid && az.Valid {
			h.Anchor = &[3]int{int(ax.Int64), int(ay.Int64), int(az.Int64)}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type AnchorSummary struct {
	World    string   `json:"world"`
	Kind     string   `json:"kind"`
	Anchor   [3]int   `json:"anchor"`
	Claims   int      `json:"claims"`
	Releases int      `json:"releases"`
	Granted  int      `json:"granted_total"`
	LastTime string   `json:"last_time,omitempty"`
	Gravity  *float64 `json:"last_gravity,omitempty"`
}

func (r *Reader) AnchorSummary(ctx context.Context, world, kind string, anchor [3]int) (AnchorSummary, error) {
	s := AnchorSummary{World: world, Kind: kind, Anchor: anchor}
	row := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN action = 'CLAIM' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = 'RELEASE' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(granted), 0),
			COALESCE(MAX(time), '')
		FROM events WHERE world = ? AND kind = ? AND ax = ? AND ay = ? AND az = ?`,
		world, kind, anchor[0], anchor[1], anchor[2])
	if err := row.Scan(&s.Claims, &s.Releases, &s.Granted, &s.LastTime); err != nil {
		return s, fmt.Errorf("anchor summary: %w", err)
	}

	var g sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT gravity FROM events
		WHERE world = ? AND kind = ? AND ax = ? AND ay = ? AND az = ? AND gravity IS NOT NULL
		ORDER BY id DESC LIMIT 1`,
		world, kind, anchor[0], anchor[1], anchor[2]).Scan(&g)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return s, fmt.Errorf("anchor summary: %w", err)
	case g.Valid:
		v := g.Float64
		s.Gravity = &v
	}
	return s, nil
}

func (r *Reader) PlanetsDigest(ctx context.Context) (string, error) {
	var d string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'planets_digest'`).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}
