package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-auctions/config"
	"github.com/aluiziolira/go-scrape-auctions/models"
)

// ErrBatchAborted marks a batch that failed for a reason other than fetching a page.
var ErrBatchAborted = errors.New("pipeline: batch aborted")

// Extractor builds the records of one listing.
type Extractor interface {
	ExtractItem(ctx context.Context, id models.ListingID, useRelay, bidCompleted bool) (*models.Item, []*models.Image, error)
	ExtractBids(ctx context.Context, id models.ListingID, useRelay bool) ([]*models.Bid, error)
	// IsFetchError separates page retrieval failures, which drop one listing,
	// from everything else, which aborts the batch.
	IsFetchError(err error) bool
}

// Store persists the three record sets. Each call is all-or-nothing for its table.
type Store interface {
	Lookup
	WriteItems(ctx context.Context, items []*models.Item) (int, error)
	WriteImages(ctx context.Context, images []*models.Image) (int, error)
	WriteBids(ctx context.Context, bids []*models.Bid) (int, error)
	Close() error
}

// Recorder receives batch outcomes, typically Prometheus counters.
type Recorder interface {
	IncBatch(state string)
	IncQuarantined(table string)
}

// WriteError is a failed write of one table for one batch.
type WriteError struct {
	Table string
	Batch int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s (batch %d): %v", e.Table, e.Batch, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Ingestor drives extraction and persistence batch by batch.
// It owns the store and the quarantine for the lifetime of a run.
type Ingestor struct {
	extractor    Extractor
	store        Store
	quarantine   *Quarantine
	recorder     Recorder
	bidCompleted bool

	metrics metrics
	now     func() time.Time
}

// NewIngestor builds an ingestor. recorder may be nil.
func NewIngestor(extractor Extractor, store Store, cfg *config.Config, recorder Recorder) *Ingestor {
	return &Ingestor{
		extractor:    extractor,
		store:        store,
		quarantine:   NewQuarantine(cfg.QuarantineDir),
		recorder:     recorder,
		bidCompleted: cfg.BidCompleted,
		metrics:      newMetrics(),
		now:          time.Now,
	}
}

// Run processes candidates in consecutive batches of batchSize. Failed writes are
// quarantined and spooled to disk at the end. A cancelled ctx stops the run between
// batches; the batch in flight still completes.
func (in *Ingestor) Run(ctx context.Context, candidates []models.ListingID, batchSize int, useRelay bool) (*models.RunSummary, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}

	summary := &models.RunSummary{
		StartTime:     in.now(),
		Candidates:    len(candidates),
		RowsPersisted: make(map[string]int),
	}

	work := context.WithoutCancel(ctx)
	for start, index := 0, 1; start < len(candidates); start, index = start+batchSize, index+1 {
		if ctx.Err() != nil {
			summary.Interrupted = true
			slog.Warn("run interrupted before batch", slog.Int("batch", index))
			break
		}
		end := min(start+batchSize, len(candidates))
		result := in.runBatch(work, index, candidates[start:end], useRelay, start, len(candidates))

		summary.Batches++
		summary.Processed += len(result.IDs)
		summary.ItemsExtracted += len(result.Items)
		summary.ListingsDropped += len(result.Dropped)
		switch {
		case result.Err != nil:
			summary.BatchesAborted++
		case len(result.Quarantined) > 0:
			summary.BatchesQuarantine++
		default:
			summary.BatchesPersisted++
		}
	}

	for table, rows := range in.metrics.rowsSnapshot() {
		summary.RowsPersisted[table] = rows
	}

	paths, err := in.quarantine.Flush(summary.StartTime)
	summary.QuarantineFiles = paths
	summary.EndTime = in.now()
	if err != nil {
		return summary, fmt.Errorf("flush quarantine: %w", err)
	}
	return summary, nil
}

// GetMetrics returns a snapshot of the internal counters.
func (in *Ingestor) GetMetrics() map[string]interface{} {
	return in.metrics.snapshot()
}

func (in *Ingestor) runBatch(ctx context.Context, index int, ids []models.ListingID, useRelay bool, offset, total int) *models.BatchResult {
	result := &models.BatchResult{Index: index, IDs: ids, State: models.BatchPending}

	if err := in.extract(ctx, result, useRelay, offset, total); err != nil {
		result.State = models.BatchAborted
		result.Err = err
		slog.Error("batch aborted",
			slog.Int("batch", index),
			slog.Int("listings", len(ids)),
			slog.Any("error", err),
		)
		in.record(string(models.BatchAborted))
		return result
	}
	result.State = models.BatchExtracted

	in.persist(ctx, result)
	if len(result.Quarantined) > 0 {
		result.State = models.BatchQuarantined
	} else {
		result.State = models.BatchPersisted
	}
	in.record(string(result.State))

	slog.Info("batch done",
		slog.Int("batch", index),
		slog.Int("items", len(result.Items)),
		slog.Int("images", len(result.Images)),
		slog.Int("bids", len(result.Bids)),
		slog.Int("dropped", len(result.Dropped)),
		slog.Any("quarantined", result.Quarantined),
	)
	result.State = models.BatchDone
	return result
}

func (in *Ingestor) extract(ctx context.Context, result *models.BatchResult, useRelay bool, offset, total int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrBatchAborted, r)
		}
	}()

	for i, id := range result.IDs {
		slog.Info("progress",
			slog.Int("listing", offset+i+1),
			slog.Int("total", total),
			slog.String("id", id.String()),
		)

		item, images, err := in.extractor.ExtractItem(ctx, id, useRelay, in.bidCompleted)
		if err != nil {
			if !in.extractor.IsFetchError(err) {
				return fmt.Errorf("%w: listing %d: %w", ErrBatchAborted, id, err)
			}
			slog.Warn("dropping listing", slog.String("id", id.String()), slog.Any("error", err))
			result.Dropped = append(result.Dropped, id)
			in.metrics.addDropped("detail_unavailable")
			continue
		}

		bids, err := in.extractor.ExtractBids(ctx, id, useRelay)
		if err != nil {
			if !in.extractor.IsFetchError(err) {
				return fmt.Errorf("%w: listing %d bids: %w", ErrBatchAborted, id, err)
			}
			slog.Warn("bid history unavailable, keeping listing without bids",
				slog.String("id", id.String()),
				slog.Any("error", err),
			)
			in.metrics.addDropped("bids_unavailable")
		}

		result.Items = append(result.Items, item)
		result.Images = append(result.Images, images...)
		result.Bids = append(result.Bids, bids...)
		in.metrics.incrementProcessed()
	}
	return nil
}

type tableWrite struct {
	table   string
	records []any
	write   func() (int, error)
}

// persist writes each table on its own; one failing table does not stop the others.
func (in *Ingestor) persist(ctx context.Context, result *models.BatchResult) {
	writes := []tableWrite{
		{
			table:   models.TableMain,
			records: toAny(result.Items),
			write:   func() (int, error) { return in.store.WriteItems(ctx, result.Items) },
		},
		{
			table:   models.TableImages,
			records: toAny(result.Images),
			write:   func() (int, error) { return in.store.WriteImages(ctx, result.Images) },
		},
		{
			table:   models.TableBids,
			records: toAny(result.Bids),
			write:   func() (int, error) { return in.store.WriteBids(ctx, result.Bids) },
		},
	}

	for _, w := range writes {
		if len(w.records) == 0 {
			continue
		}
		written, err := safeWrite(w.write)
		if err != nil {
			werr := &WriteError{Table: w.table, Batch: result.Index, Err: err}
			slog.Error("write failed, quarantining record set",
				slog.String("table", w.table),
				slog.Int("batch", result.Index),
				slog.Int("records", len(w.records)),
				slog.Any("error", werr),
			)
			in.quarantine.Add(w.table, result.Index, w.records)
			result.Quarantined = append(result.Quarantined, w.table)
			if in.recorder != nil {
				in.recorder.IncQuarantined(w.table)
			}
			continue
		}
		in.metrics.addRows(w.table, written)
	}
}

func safeWrite(write func() (int, error)) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during write: %v", r)
		}
	}()
	return write()
}

func (in *Ingestor) record(state string) {
	if in.recorder != nil {
		in.recorder.IncBatch(state)
	}
}

func toAny[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	dropped   map[string]int
	rows      map[string]int
}

func newMetrics() metrics {
	return metrics{
		dropped: make(map[string]int),
		rows:    make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addDropped(reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *metrics) addRows(table string, n int) {
	m.mu.Lock()
	m.rows[table] += n
	m.mu.Unlock()
}

func (m *metrics) rowsSnapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyDropped := make(map[string]int, len(m.dropped))
	for k, v := range m.dropped {
		copyDropped[k] = v
	}
	copyRows := make(map[string]int, len(m.rows))
	for k, v := range m.rows {
		copyRows[k] = v
	}

	return map[string]interface{}{
		"processed_listings": m.processed,
		"dropped":            copyDropped,
		"rows_persisted":     copyRows,
	}
}
