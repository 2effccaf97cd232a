package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	DefaultGCInterval = 5 * time.Minute
	gcDiscardRatio    = 0.5
)

// ValueLogGCWorker reclaims Badger value log space on a fixed interval.
// Message logs are append only, so only MarkRead rewrites leave garbage behind.
type ValueLogGCWorker struct {
	db       *badger.DB
	log      *slog.Logger
	interval time.Duration
}

func NewValueLogGCWorker(db *badger.DB, log *slog.Logger, interval time.Duration) *ValueLogGCWorker {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &ValueLogGCWorker{db: db, log: log, interval: interval}
}

func (w *ValueLogGCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping value log GC")
			return nil
		case <-ticker.C:
			if w.db.IsClosed() {
				w.log.Info("Badger closed, stopping value log GC")
				return nil
			}
			rewrites, err := w.collect()
			if err != nil {
				return err
			}
			w.log.Debug("Value log GC done", "rewrites", rewrites)
		}
	}
}

// collect runs GC until Badger reports there is nothing left to rewrite.
func (w *ValueLogGCWorker) collect() (int, error) {
	rewrites := 0
	for {
		err := w.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			rewrites++
		case stderrors.Is(err, badger.ErrNoRewrite), stderrors.Is(err, badger.ErrRejected):
			return rewrites, nil
		default:
			return rewrites, err
		}
	}
}
