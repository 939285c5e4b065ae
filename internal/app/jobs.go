package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"borsabot/internal/config"
	"borsabot/internal/market"
	"borsabot/internal/notify"
	"borsabot/internal/store"
	logx "borsabot/pkg/logx"
)

const jobTimeout = 2 * time.Minute

type feedSource interface {
	Fetch(ctx context.Context) (map[string]market.GroupSnapshot, error)
}

type snapshotStore interface {
	PersistDaily(ctx context.Context, snaps []market.GroupSnapshot) error
	ListEligible(ctx context.Context, dnd bool) ([]store.Subscriber, error)
}

type broadcaster interface {
	Broadcast(ctx context.Context, text string, recipients []store.Subscriber) notify.Report
}

// Jobs owns the scheduled work: periodic bulletin ingestion and the daily
// price fan-out to subscribers.
type Jobs struct {
	cron   *cron.Cron
	feed   feedSource
	db     snapshotStore
	engine broadcaster
	log    logx.Logger

	mu  sync.Mutex
	ctx context.Context
}

func NewJobs(loc *time.Location, feed feedSource, db snapshotStore, engine broadcaster, log logx.Logger) *Jobs {
	return &Jobs{
		cron:   cron.New(cron.WithLocation(loc)),
		feed:   feed,
		db:     db,
		engine: engine,
		log:    log,
	}
}

func (j *Jobs) Schedule(cfg config.ScheduleConfig) error {
	ingestEvery, err := config.ParseDurationField("schedule.ingest_interval", cfg.IngestInterval)
	if err != nil {
		return err
	}
	if ingestEvery > 0 {
		j.cron.Schedule(cron.Every(ingestEvery), cron.FuncJob(func() { j.runIngest() }))
	}
	for _, at := range cfg.DailyTimes {
		hour, minute, err := config.ParseClock(at)
		if err != nil {
			return err
		}
		spec := fmt.Sprintf("%d %d * * *", minute, hour)
		if _, err := j.cron.AddFunc(spec, func() { j.runDaily() }); err != nil {
			return fmt.Errorf("schedule daily %q: %w", at, err)
		}
	}
	return nil
}

func (j *Jobs) Start(ctx context.Context) {
	j.mu.Lock()
	j.ctx = ctx
	j.mu.Unlock()
	j.cron.Start()
	j.log.Info("schedule started", logx.Int("entries", len(j.cron.Entries())))
}

func (j *Jobs) Stop() {
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		j.log.Warn("scheduled job still running at shutdown")
	}
}

func (j *Jobs) runCtx() (context.Context, context.CancelFunc) {
	j.mu.Lock()
	parent := j.ctx
	j.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, jobTimeout)
}

// runIngest fetches the bulletin and persists today's snapshots. Errors go to
// the log at a level the Telegram sink forwards, so an unreachable feed is
// visible to the operator without paging per retry.
func (j *Jobs) runIngest() {
	ctx, cancel := j.runCtx()
	defer cancel()

	groups, err := j.fetch(ctx)
	if err != nil {
		return
	}
	j.persist(ctx, groups)
	j.log.Debug("ingest finished", logx.Int("groups", len(groups)))
}

// runDaily ingests once more, then fans the price table out to every active
// subscriber that has not muted notifications. Persistence and fan-out are
// independent outcomes of the same fetch: a store failure is logged but never
// costs subscribers their table. Only a failed fetch aborts the cycle.
func (j *Jobs) runDaily() {
	ctx, cancel := j.runCtx()
	defer cancel()

	groups, err := j.fetch(ctx)
	if err != nil {
		return
	}
	j.persist(ctx, groups)

	if len(groups) == 0 {
		j.log.Info("no prices published today; skipping fan-out")
		return
	}

	recipients, err := j.db.ListEligible(ctx, false)
	if err != nil {
		j.log.Error("fan-out recipient query failed", logx.Err(err))
		return
	}
	if len(recipients) == 0 {
		j.log.Info("no eligible subscribers; skipping fan-out")
		return
	}

	rep := j.engine.Broadcast(ctx, market.PriceListHTML(groups), recipients)
	j.log.Info("daily fan-out finished",
		logx.Int("delivered", rep.Delivered),
		logx.Int("transient", rep.Transient),
		logx.Int("deactivated", len(rep.Deactivated)),
	)
}

func (j *Jobs) fetch(ctx context.Context) (map[string]market.GroupSnapshot, error) {
	groups, err := j.feed.Fetch(ctx)
	if err != nil {
		j.log.Error("bulletin fetch failed", logx.Err(err))
		return nil, err
	}
	return groups, nil
}

func (j *Jobs) persist(ctx context.Context, groups map[string]market.GroupSnapshot) {
	if len(groups) == 0 {
		j.log.Info("bulletin is empty; nothing to persist")
		return
	}

	snaps := make([]market.GroupSnapshot, 0, len(groups))
	for _, g := range groups {
		snaps = append(snaps, g)
	}
	if err := j.db.PersistDaily(ctx, snaps); err != nil {
		if errors.Is(err, store.ErrStaleSweep) {
			// New rows are in; the stale sweep retries implicitly on the
			// next ingest.
			j.log.Warn("stale snapshot sweep failed", logx.Err(err))
			return
		}
		j.log.Error("snapshot persist failed", logx.Err(err))
	}
}
