package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"borsabot/internal/market"
	logx "borsabot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "bot.db"),
		Location: time.UTC,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snap(group, avg string, qty int64, at time.Time) market.GroupSnapshot {
	d := decimal.RequireFromString(avg)
	return market.GroupSnapshot{
		Group:      group,
		Min:        d.Sub(decimal.RequireFromString("1")),
		Max:        d.Add(decimal.RequireFromString("1")),
		Avg:        d,
		Quantity:   qty,
		CapturedAt: at,
	}
}

func TestPersistDailyDedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	morning := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	noon := morning.Add(3 * time.Hour)

	if err := s.PersistDaily(ctx, []market.GroupSnapshot{
		snap("Cereals", "11.00", 400, morning),
		snap("Legumes", "1250.00", 50, morning),
	}); err != nil {
		t.Fatalf("first PersistDaily: %v", err)
	}
	if err := s.PersistDaily(ctx, []market.GroupSnapshot{
		snap("Cereals", "11.25", 500, noon),
		snap("Legumes", "1300.00", 60, noon),
	}); err != nil {
		t.Fatalf("second PersistDaily: %v", err)
	}

	hist, err := s.History(ctx, []string{"2026-03-10"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 1 snapshot per group after resupersede, got %d rows", len(hist))
	}
	for _, g := range hist {
		switch g.Group {
		case "Cereals":
			if !g.Avg.Equal(decimal.RequireFromString("11.25")) || g.Quantity != 500 {
				t.Fatalf("Cereals row not superseded: %+v", g)
			}
		case "Legumes":
			if !g.Avg.Equal(decimal.RequireFromString("1300")) {
				t.Fatalf("Legumes row not superseded: %+v", g)
			}
		default:
			t.Fatalf("unexpected group %q", g.Group)
		}
	}
}

func TestPersistDailyCrossDayIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	if err := s.PersistDaily(ctx, []market.GroupSnapshot{snap("Cereals", "11.00", 400, day1)}); err != nil {
		t.Fatalf("day1 PersistDaily: %v", err)
	}
	if err := s.PersistDaily(ctx, []market.GroupSnapshot{snap("Cereals", "11.50", 450, day2)}); err != nil {
		t.Fatalf("day2 PersistDaily: %v", err)
	}

	days, err := s.RecentDays(ctx, 7)
	if err != nil {
		t.Fatalf("RecentDays: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 distinct days, got %v", days)
	}
	if days[0] != "2026-03-11" || days[1] != "2026-03-10" {
		t.Fatalf("expected newest-first ordering, got %v", days)
	}

	hist, err := s.History(ctx, days)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("different days must not supersede each other, got %d rows", len(hist))
	}
}

func TestPersistDailyBoundaryPinnedToCapture(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// 23:59 and next-day 00:01 belong to different days even when persisted
	// back to back.
	lateNight := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	pastMidnight := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)

	if err := s.PersistDaily(ctx, []market.GroupSnapshot{snap("Cereals", "11.00", 400, lateNight)}); err != nil {
		t.Fatalf("PersistDaily: %v", err)
	}
	if err := s.PersistDaily(ctx, []market.GroupSnapshot{snap("Cereals", "11.10", 410, pastMidnight)}); err != nil {
		t.Fatalf("PersistDaily: %v", err)
	}

	days, err := s.RecentDays(ctx, 7)
	if err != nil {
		t.Fatalf("RecentDays: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("midnight-crossing batches must land on distinct days, got %v", days)
	}
}

func TestPersistDailyEmptyBatch(t *testing.T) {
	s := openTestStore(t)
	if err := s.PersistDaily(context.Background(), nil); err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}
}

func TestSubscriberEligibility(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	subs := []Subscriber{
		{ID: 1, FirstName: "A", Active: true, DND: false},
		{ID: 2, FirstName: "B", Active: true, DND: true},
		{ID: 3, FirstName: "C", Active: false, DND: false},
	}
	for _, sub := range subs {
		if err := s.Create(ctx, sub); err != nil {
			t.Fatalf("Create(%d): %v", sub.ID, err)
		}
	}

	eligible, err := s.ListEligible(ctx, false)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != 1 {
		t.Fatalf("ListEligible(dnd=false) = %+v, want only id 1", eligible)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("ListActive = %+v, want ids 1 and 2", active)
	}
}

func TestDeactivateBulkIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if err := s.Create(ctx, Subscriber{ID: id, Active: true}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := s.Deactivate(ctx, []int64{1, 2})
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if n != 2 {
		t.Fatalf("Deactivate flipped %d rows, want 2", n)
	}

	// Re-deactivating is a no-op, not an error.
	n, err = s.Deactivate(ctx, []int64{1, 2})
	if err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
	if n != 0 {
		t.Fatalf("second Deactivate flipped %d rows, want 0", n)
	}

	n, err = s.Deactivate(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("empty Deactivate = (%d, %v), want (0, nil)", n, err)
	}
}

func TestReactivateOnReturn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, Subscriber{ID: 7, Active: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Deactivate(ctx, []int64{7}); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := s.Reactivate(ctx, 7); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}

	sub, err := s.Find(ctx, 7)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if sub == nil || !sub.Active {
		t.Fatalf("subscriber not reactivated: %+v", sub)
	}
}

func TestFindUnknownSubscriber(t *testing.T) {
	s := openTestStore(t)
	sub, err := s.Find(context.Background(), 404)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected nil for unknown subscriber, got %+v", sub)
	}
}

func TestSetDND(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, Subscriber{ID: 5, Active: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetDND(ctx, 5, true); err != nil {
		t.Fatalf("SetDND: %v", err)
	}

	sub, err := s.Find(ctx, 5)
	if err != nil || sub == nil {
		t.Fatalf("Find: %v %v", sub, err)
	}
	if !sub.DND {
		t.Fatal("DND flag not set")
	}

	eligible, err := s.ListEligible(ctx, false)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("DND subscriber must not be eligible: %+v", eligible)
	}
}
