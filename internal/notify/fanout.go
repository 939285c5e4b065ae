// Package notify implements the fan-out engine: one message, many
// recipients, per-recipient failure classification, and bulk deactivation of
// the permanently unreachable.
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"borsabot/internal/store"
	kit "borsabot/internal/transport"
	logx "borsabot/pkg/logx"
)

type Config struct {
	Workers    int
	RatePerSec int
}

// Registry is the subscriber-registry slice the engine needs: one bulk
// deactivation call per broadcast.
type Registry interface {
	Deactivate(ctx context.Context, ids []int64) (int64, error)
}

// Report summarizes one broadcast cycle.
type Report struct {
	Delivered   int
	Transient   int
	Deactivated []int64
}

type Engine struct {
	cfg     Config
	adapter kit.Adapter
	reg     Registry
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, reg Registry, log logx.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:     cfg,
		adapter: adapter,
		reg:     reg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Broadcast attempts exactly one delivery per recipient. Failures never stop
// the loop: permanently unreachable recipients are collected and deactivated
// in a single bulk registry call after every attempt has finished; transient
// failures are logged and left for the next cycle.
func (e *Engine) Broadcast(ctx context.Context, text string, recipients []store.Subscriber) Report {
	if len(recipients) == 0 {
		return Report{}
	}

	var (
		mu        sync.Mutex
		delivered int
		transient int
		gone      []int64
	)

	jobs := make(chan store.Subscriber)
	var wg sync.WaitGroup

	workers := e.cfg.Workers
	if workers > len(recipients) {
		workers = len(recipients)
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for sub := range jobs {
				err := e.sendOne(ctx, sub, text)
				mu.Lock()
				switch {
				case err == nil:
					delivered++
				case errors.Is(err, kit.ErrRecipientGone):
					gone = append(gone, sub.ID)
				default:
					transient++
				}
				mu.Unlock()

				if err != nil && !errors.Is(err, kit.ErrRecipientGone) {
					e.log.Warn("delivery failed, will retry next cycle",
						logx.Int64("subscriber", sub.ID), logx.Err(err))
				}
			}
		}()
	}

	for _, sub := range recipients {
		jobs <- sub
	}
	close(jobs)
	wg.Wait()

	// Deactivation happens once, after the full iteration, with the union of
	// every unreachable outcome. Never per recipient.
	if len(gone) > 0 {
		sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
		n, err := e.reg.Deactivate(ctx, gone)
		if err != nil {
			e.log.Error("bulk deactivation failed", logx.Int("count", len(gone)), logx.Err(err))
		} else {
			e.log.Info("deactivated unreachable subscribers", logx.Int64("flipped", n), logx.Int("count", len(gone)))
		}
	}

	e.log.Info("broadcast finished",
		logx.Int("recipients", len(recipients)),
		logx.Int("delivered", delivered),
		logx.Int("transient", transient),
		logx.Int("deactivated", len(gone)))

	return Report{Delivered: delivered, Transient: transient, Deactivated: gone}
}

func (e *Engine) sendOne(ctx context.Context, sub store.Subscriber, text string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	return e.adapter.SendText(ctx, kit.ChatTarget{ChatID: sub.ID}, text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
}
