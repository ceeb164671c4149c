// Package broadcaster drains the trade outbox into a publisher.
package broadcaster

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"matchcore/infra/kafka"
	"matchcore/infra/metrics"
	"matchcore/infra/outbox"
)

type Config struct {
	Interval   time.Duration
	MaxRetries uint32 // publish attempts before an event is marked FAILED
	BatchSize  int    // entries per pass, 0 = unlimited
	// StreamKey is the message key of every event so one book's events
	// share a partition and keep their order. Defaults to DefaultStreamKey.
	StreamKey string
}

const DefaultStreamKey = "matchcore"

type Broadcaster struct {
	cfg       Config
	outbox    *outbox.Outbox
	publisher kafka.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(cfg Config, ob *outbox.Outbox, p kafka.Publisher, m *metrics.Metrics, log *zap.Logger) (*Broadcaster, error) {
	if ob == nil || p == nil {
		return nil, errors.New("broadcaster: outbox and publisher required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.Newf("broadcaster: interval %s", cfg.Interval)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 1
	}
	if cfg.StreamKey == "" {
		cfg.StreamKey = DefaultStreamKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{cfg: cfg, outbox: ob, publisher: p, metrics: m, log: log}, nil
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run drains the outbox every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.Duration("interval", b.cfg.Interval))
	defer b.log.Info("broadcaster stopped")

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				b.log.Warn("drain pass failed", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// DRAIN
// ------------------------------------------------

var errBatchDone = errors.New("batch done")

// DrainOnce publishes pending events in key order and returns how many were
// acknowledged. It stops at the first failed publish so later events of the
// same stream are not sent ahead of it.
func (b *Broadcaster) DrainOnce(ctx context.Context) (int, error) {
	var pending []outbox.Entry
	err := b.outbox.ScanPending(func(e outbox.Entry) error {
		pending = append(pending, e)
		if b.cfg.BatchSize > 0 && len(pending) == b.cfg.BatchSize {
			return errBatchDone
		}
		return nil
	})
	if err != nil && !errors.Is(err, errBatchDone) {
		return 0, errors.Wrap(err, "scan outbox")
	}

	key := []byte(b.cfg.StreamKey)
	acked := 0
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return acked, err
		}

		// 1. SENT
		if err := b.outbox.MarkSent(e); err != nil {
			return acked, err
		}

		// 2. publish
		if err := b.publisher.Publish(ctx, key, e.Payload); err != nil {
			b.publishFailed(e, err)
			break
		}

		// 3. ACKED
		if err := b.outbox.MarkAcked(e); err != nil {
			return acked, err
		}
		acked++
		if b.metrics != nil {
			b.metrics.Published.Inc()
		}
	}

	if acked > 0 {
		n, err := b.outbox.DeleteAcked()
		if err != nil {
			return acked, errors.Wrap(err, "truncate acked")
		}
		b.log.Debug("outbox drained", zap.Int("acked", acked), zap.Int("deleted", n))
	}
	return acked, nil
}

func (b *Broadcaster) publishFailed(e outbox.Entry, cause error) {
	if b.metrics != nil {
		b.metrics.PublishErrors.Inc()
	}

	fields := []zap.Field{
		zap.Uint64("seq", e.Seq),
		zap.Int("index", e.Index),
		zap.Uint32("retries", e.Retries+1),
		zap.Error(cause),
	}

	if e.Retries+1 >= b.cfg.MaxRetries {
		if err := b.outbox.MarkFailed(e); err != nil {
			b.log.Error("mark failed", append(fields, zap.NamedError("mark_error", err))...)
			return
		}
		if b.metrics != nil {
			b.metrics.OutboxFailed.Inc()
		}
		b.log.Error("event abandoned", fields...)
		return
	}

	if err := b.outbox.MarkRetry(e); err != nil {
		b.log.Error("mark retry", append(fields, zap.NamedError("mark_error", err))...)
		return
	}
	b.log.Warn("publish failed, will retry", fields...)
}
