package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/ColdranAI/sqlbase/internal/core/port"
)

const (
	defaultBatchSize    = 50
	defaultFlushTimeout = 5 * time.Second
	defaultChanBuffer   = 1000

	// Statement text is truncated to this many bytes before storage.
	maxSQLLen = 1000
)

// Recorder implements port.UsageLogger using a buffered channel and a
// background goroutine that batch-inserts entries into the database.
type Recorder struct {
	repo   port.UsageRepository
	ch     chan port.UsageEntry
	done   chan struct{}
	logger *slog.Logger
}

// NewRecorder creates a Recorder that writes usage entries to the given
// repository in batches. The background goroutine flushes when the batch
// is full or the flush interval elapses, whichever comes first.
func NewRecorder(repo port.UsageRepository, logger *slog.Logger) *Recorder {
	r := &Recorder{
		repo:   repo,
		ch:     make(chan port.UsageEntry, defaultChanBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.run()
	return r
}

// Record enqueues a usage entry. Non-blocking; drops the entry if the
// channel is full so a slow control-plane database never delays query
// responses.
func (r *Recorder) Record(entry port.UsageEntry) {
	if len(entry.SQL) > maxSQLLen {
		entry.SQL = entry.SQL[:maxSQLLen]
	}
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("usage channel full, dropping entry",
			slog.String("user_id", entry.UserID),
		)
	}
}

// Close signals the background goroutine to flush and exit.
// Blocks until all remaining entries are flushed.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	batch := make([]port.UsageEntry, 0, defaultBatchSize)
	ticker := time.NewTicker(defaultFlushTimeout)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-r.ch:
			if !ok {
				// Channel closed — flush remaining and exit.
				if len(batch) > 0 {
					r.flush(batch)
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= defaultBatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []port.UsageEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.repo.InsertBatch(ctx, batch); err != nil {
		r.logger.Error("failed to flush usage batch",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
}
