package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"borsabot/internal/market"
	"borsabot/internal/notify"
	"borsabot/internal/store"
	logx "borsabot/pkg/logx"
)

type stubFeed struct {
	groups map[string]market.GroupSnapshot
	err    error
}

func (f *stubFeed) Fetch(context.Context) (map[string]market.GroupSnapshot, error) {
	return f.groups, f.err
}

type stubStore struct {
	persistErr  error
	persisted   int
	subscribers []store.Subscriber
}

func (s *stubStore) PersistDaily(_ context.Context, snaps []market.GroupSnapshot) error {
	s.persisted += len(snaps)
	return s.persistErr
}

func (s *stubStore) ListEligible(context.Context, bool) ([]store.Subscriber, error) {
	return s.subscribers, nil
}

type stubBroadcaster struct {
	calls int
	texts []string
}

func (b *stubBroadcaster) Broadcast(_ context.Context, text string, recipients []store.Subscriber) notify.Report {
	b.calls++
	b.texts = append(b.texts, text)
	return notify.Report{Delivered: len(recipients)}
}

func testGroups() map[string]market.GroupSnapshot {
	return map[string]market.GroupSnapshot{
		"Hububat": {
			Group:      "Hububat",
			Min:        decimal.RequireFromString("10"),
			Max:        decimal.RequireFromString("12.5"),
			Avg:        decimal.RequireFromString("11.25"),
			Quantity:   500,
			CapturedAt: time.Now(),
		},
	}
}

func newTestJobs(feed feedSource, db snapshotStore, engine broadcaster) *Jobs {
	return NewJobs(time.UTC, feed, db, engine, logx.Nop())
}

func TestRunDailyFansOutDespitePersistFailure(t *testing.T) {
	db := &stubStore{
		persistErr:  errors.New("disk full"),
		subscribers: []store.Subscriber{{ID: 1, Active: true}},
	}
	engine := &stubBroadcaster{}
	j := newTestJobs(&stubFeed{groups: testGroups()}, db, engine)

	j.runDaily()

	if engine.calls != 1 {
		t.Fatalf("fan-out ran %d times, want 1; a store failure must not gate delivery", engine.calls)
	}
}

func TestRunDailyAbortsOnFetchFailure(t *testing.T) {
	db := &stubStore{subscribers: []store.Subscriber{{ID: 1, Active: true}}}
	engine := &stubBroadcaster{}
	j := newTestJobs(&stubFeed{err: market.ErrFeedTimeout}, db, engine)

	j.runDaily()

	if engine.calls != 0 {
		t.Fatal("fan-out must not run when the bulletin fetch fails")
	}
	if db.persisted != 0 {
		t.Fatal("nothing must be persisted when the bulletin fetch fails")
	}
}

func TestRunDailySkipsFanOutOnEmptyBulletin(t *testing.T) {
	db := &stubStore{subscribers: []store.Subscriber{{ID: 1, Active: true}}}
	engine := &stubBroadcaster{}
	j := newTestJobs(&stubFeed{groups: map[string]market.GroupSnapshot{}}, db, engine)

	j.runDaily()

	if engine.calls != 0 {
		t.Fatal("an empty bulletin must not be broadcast")
	}
}

func TestRunDailyBroadcastsPriceTable(t *testing.T) {
	db := &stubStore{subscribers: []store.Subscriber{{ID: 1, Active: true}, {ID: 2, Active: true}}}
	engine := &stubBroadcaster{}
	j := newTestJobs(&stubFeed{groups: testGroups()}, db, engine)

	j.runDaily()

	if engine.calls != 1 {
		t.Fatalf("fan-out ran %d times, want 1", engine.calls)
	}
	if len(engine.texts) != 1 || engine.texts[0] != market.PriceListHTML(testGroups()) {
		t.Fatal("fan-out must send the formatted price table")
	}
	if db.persisted == 0 {
		t.Fatal("a successful cycle must also persist the snapshots")
	}
}

func TestRunIngestToleratesStaleSweepFailure(t *testing.T) {
	db := &stubStore{persistErr: store.ErrStaleSweep}
	engine := &stubBroadcaster{}
	j := newTestJobs(&stubFeed{groups: testGroups()}, db, engine)

	j.runIngest()

	if db.persisted == 0 {
		t.Fatal("ingest must still hand the batch to the store")
	}
}
