package search

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dchud/unalog2/internal/store"
)

// OutboxStore is the queue the relay consumes.
type OutboxStore interface {
	ClaimOutbox(ctx context.Context, limit int) ([]store.OutboxItem, error)
	CompleteOutbox(ctx context.Context, id int64) error
	FailOutbox(ctx context.Context, id int64, message string, maxAttempts int) error
}

// Relay applies queued index operations through a Mirror.
type Relay struct {
	outbox      OutboxStore
	mirror      *Mirror
	log         logrus.FieldLogger
	batch       int
	maxAttempts int
	interval    time.Duration
	wake        chan struct{}
}

func NewRelay(outbox OutboxStore, mirror *Mirror, log logrus.FieldLogger, batch, maxAttempts int, interval time.Duration) *Relay {
	if batch <= 0 {
		batch = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Relay{
		outbox:      outbox,
		mirror:      mirror,
		log:         log.WithField("component", "relay"),
		batch:       batch,
		maxAttempts: maxAttempts,
		interval:    interval,
		wake:        make(chan struct{}, 1),
	}
}

// Notify asks a running relay to drain now instead of waiting for the
// next tick. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox on every tick or notification until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Warn("outbox drain failed")
		}
	}
}

// Drain applies pending rows until the queue is empty or a row fails.
// Failed rows are released for a later attempt. Nothing is claimed while
// the index is unhealthy. Without an index at all the rows are discarded;
// a full reindex rebuilds the documents once one is configured.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	if !r.mirror.Configured() {
		return r.discard(ctx)
	}
	applied := 0
	for r.mirror.Healthy() {
		items, err := r.outbox.ClaimOutbox(ctx, r.batch)
		if err != nil {
			return applied, err
		}
		if len(items) == 0 {
			return applied, nil
		}
		failed := false
		for _, item := range items {
			log := r.log.WithFields(logrus.Fields{"outbox_id": item.ID, "op": item.Op})
			if err := r.mirror.Apply(ctx, item); err != nil {
				failed = true
				log.WithError(err).Warn("outbox item failed")
				if err := r.outbox.FailOutbox(ctx, item.ID, err.Error(), r.maxAttempts); err != nil {
					return applied, err
				}
				continue
			}
			if err := r.outbox.CompleteOutbox(ctx, item.ID); err != nil {
				return applied, err
			}
			applied++
		}
		if failed || len(items) < r.batch {
			return applied, nil
		}
	}
	return applied, nil
}

func (r *Relay) discard(ctx context.Context) (int, error) {
	discarded := 0
	for {
		items, err := r.outbox.ClaimOutbox(ctx, r.batch)
		if err != nil {
			return discarded, err
		}
		for _, item := range items {
			if err := r.outbox.CompleteOutbox(ctx, item.ID); err != nil {
				return discarded, err
			}
			discarded++
		}
		if len(items) < r.batch {
			if discarded > 0 {
				r.log.WithField("count", discarded).Debug("no index configured, outbox rows discarded")
			}
			return discarded, nil
		}
	}
}
