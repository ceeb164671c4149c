package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"matchcore/snapshot"
)

// Snapshot writes the engine state and drops journal segments it covers.
// Matching is blocked only while the state is copied.
func (s *OrderService) Snapshot(w *snapshot.Writer) (uint64, error) {
	s.mu.Lock()
	st := s.engine.State()
	seq := s.seq.Current()
	s.mu.Unlock()

	path, err := w.Write(seq, st)
	if err != nil {
		return 0, err
	}

	if s.journal != nil {
		s.mu.Lock()
		err = s.journal.TruncateBefore(seq)
		s.mu.Unlock()
		if err != nil {
			return seq, errors.Wrap(err, "truncate journal")
		}
	}

	s.log.Info("snapshot written",
		zap.String("path", path),
		zap.Uint64("seq", seq),
		zap.Int("orders", len(st.Orders)),
	)
	return seq, nil
}

// RunSnapshotJob snapshots every interval until ctx is done.
func (s *OrderService) RunSnapshotJob(ctx context.Context, w *snapshot.Writer, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.seq.Current() == last {
				continue // nothing new
			}
			seq, err := s.Snapshot(w)
			if err != nil {
				s.log.Error("snapshot failed", zap.Error(err))
				continue
			}
			last = seq
		}
	}
}
