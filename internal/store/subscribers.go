package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Subscriber is one chat-platform user of the bot. Subscribers are never
// deleted; confirmed-unreachable ones are soft-deactivated and excluded from
// every fan-out until they come back.
type Subscriber struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Language  string
	DND       bool
	Active    bool
	CreatedAt time.Time
}

// Find returns the subscriber or (nil, nil) when unknown.
func (s *Store) Find(ctx context.Context, id int64) (*Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, username, language, dnd, active, created_at
		   FROM subscribers WHERE id = ?`, id)

	var (
		sub Subscriber
		ms  int64
	)
	err := row.Scan(&sub.ID, &sub.FirstName, &sub.LastName, &sub.Username, &sub.Language, &sub.DND, &sub.Active, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscriber %d: %w", id, err)
	}
	sub.CreatedAt = time.UnixMilli(ms)
	return &sub, nil
}

func (s *Store) Create(ctx context.Context, sub Subscriber) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(id, first_name, last_name, username, language, dnd, active, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		sub.ID, sub.FirstName, sub.LastName, sub.Username, sub.Language, sub.DND, sub.Active, sub.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create subscriber %d: %w", sub.ID, err)
	}
	return nil
}

// Reactivate flips a soft-deactivated subscriber back to active. No-op for an
// already-active one.
func (s *Store) Reactivate(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET active = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("reactivate subscriber %d: %w", id, err)
	}
	return nil
}

func (s *Store) SetDND(ctx context.Context, id int64, dnd bool) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET dnd = ? WHERE id = ?`, dnd, id); err != nil {
		return fmt.Errorf("set dnd for subscriber %d: %w", id, err)
	}
	return nil
}

// ListEligible returns active subscribers with the requested do-not-disturb
// flag. Deactivated subscribers are never returned.
func (s *Store) ListEligible(ctx context.Context, dnd bool) ([]Subscriber, error) {
	return s.list(ctx,
		`SELECT id, first_name, last_name, username, language, dnd, active, created_at
		   FROM subscribers WHERE active = 1 AND dnd = ? ORDER BY id`, dnd)
}

// ListActive returns every active subscriber regardless of the DND flag.
// Operator announcements use this audience.
func (s *Store) ListActive(ctx context.Context) ([]Subscriber, error) {
	return s.list(ctx,
		`SELECT id, first_name, last_name, username, language, dnd, active, created_at
		   FROM subscribers WHERE active = 1 ORDER BY id`)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var (
			sub Subscriber
			ms  int64
		)
		if err := rows.Scan(&sub.ID, &sub.FirstName, &sub.LastName, &sub.Username, &sub.Language, &sub.DND, &sub.Active, &ms); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		sub.CreatedAt = time.UnixMilli(ms)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Deactivate bulk-deactivates the given subscribers and reports how many rows
// actually flipped. Re-deactivating an inactive subscriber is a no-op, not an
// error.
func (s *Store) Deactivate(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET active = 0 WHERE active = 1 AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate subscribers: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
