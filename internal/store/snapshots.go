package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"borsabot/internal/market"
	logx "borsabot/pkg/logx"
)

// ErrStaleSweep marks a PersistDaily call that inserted the new snapshots but
// failed to remove the superseded same-day rows. The data is current, there
// are just duplicates; callers should log it as a warning, not abort.
var ErrStaleSweep = errors.New("stale snapshot sweep failed")

// PersistDaily stores the batch as today's snapshots, superseding any earlier
// rows the same groups wrote within the same calendar day.
//
// The day window is pinned to the batch's capture time, not the wall clock at
// store time, so a cycle that crosses midnight still supersedes the right day.
// New rows are inserted before the stale ones are deleted: a reader between
// the two steps sees duplicates for a moment, never a gap.
func (s *Store) PersistDaily(ctx context.Context, snaps []market.GroupSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	capturedAt := snaps[0].CapturedAt
	dayStart := time.Date(
		capturedAt.In(s.loc).Year(), capturedAt.In(s.loc).Month(), capturedAt.In(s.loc).Day(),
		0, 0, 0, 0, s.loc,
	)
	dayEnd := dayStart.AddDate(0, 0, 1)

	names := make([]any, 0, len(snaps))
	for _, g := range snaps {
		names = append(names, g.Group)
	}

	// 1) find same-day rows for the incoming groups
	args := append(names, dayStart.UnixMilli(), dayEnd.UnixMilli())
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM snapshots WHERE group_name IN (`+placeholders(len(names))+`)
		   AND captured_at >= ? AND captured_at < ?`, args...)
	if err != nil {
		return fmt.Errorf("query stale snapshots: %w", err)
	}
	var stale []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan stale snapshot id: %w", err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate stale snapshots: %w", err)
	}
	rows.Close()

	// 2) insert the new batch
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	for _, g := range snaps {
		day := g.CapturedAt.In(s.loc).Format("2006-01-02")
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots(group_name, min_price, max_price, avg_price, quantity, captured_at, day)
			 VALUES(?,?,?,?,?,?,?)`,
			g.Group, g.Min.String(), g.Max.String(), g.Avg.String(), g.Quantity, g.CapturedAt.UnixMilli(), day,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert snapshot %s: %w", g.Group, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}

	// 3) sweep the superseded rows
	if len(stale) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id IN (`+placeholders(len(stale))+`)`, stale...); err != nil {
		return fmt.Errorf("%w: %v", ErrStaleSweep, err)
	}
	s.log.Debug("superseded same-day snapshots", logx.Int("count", len(stale)))
	return nil
}

// RecentDays returns up to n distinct capture days, newest first, as
// "2006-01-02" strings in the store's calendar.
func (s *Store) RecentDays(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day FROM snapshots GROUP BY day ORDER BY MAX(captured_at) DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// History returns every snapshot captured on any of the given days.
func (s *Store) History(ctx context.Context, days []string) ([]market.GroupSnapshot, error) {
	if len(days) == 0 {
		return nil, nil
	}
	args := make([]any, len(days))
	for i, d := range days {
		args[i] = d
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_name, min_price, max_price, avg_price, quantity, captured_at
		   FROM snapshots WHERE day IN (`+placeholders(len(days))+`)
		  ORDER BY captured_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []market.GroupSnapshot
	for rows.Next() {
		g, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanSnapshot(rows *sql.Rows) (market.GroupSnapshot, error) {
	var (
		g                market.GroupSnapshot
		minS, maxS, avgS string
		ms               int64
	)
	if err := rows.Scan(&g.Group, &minS, &maxS, &avgS, &g.Quantity, &ms); err != nil {
		return market.GroupSnapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	var err error
	if g.Min, err = decimal.NewFromString(minS); err != nil {
		return market.GroupSnapshot{}, fmt.Errorf("stored min price %q: %w", minS, err)
	}
	if g.Max, err = decimal.NewFromString(maxS); err != nil {
		return market.GroupSnapshot{}, fmt.Errorf("stored max price %q: %w", maxS, err)
	}
	if g.Avg, err = decimal.NewFromString(avgS); err != nil {
		return market.GroupSnapshot{}, fmt.Errorf("stored avg price %q: %w", avgS, err)
	}
	g.CapturedAt = time.UnixMilli(ms)
	return g, nil
}
