package pipeline

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-auctions/config"
	"github.com/aluiziolira/go-scrape-auctions/models"
)

var errPageUnavailable = errors.New("page unavailable")

type mockExtractor struct {
	itemErr  map[models.ListingID]error
	bidErr   map[models.ListingID]error
	panicOn  models.ListingID
	noImages bool
	onItem   func(id models.ListingID)
}

func (m *mockExtractor) ExtractItem(_ context.Context, id models.ListingID, _, _ bool) (*models.Item, []*models.Image, error) {
	if m.onItem != nil {
		m.onItem(id)
	}
	if id == m.panicOn {
		panic("unexpected markup")
	}
	if err := m.itemErr[id]; err != nil {
		return nil, nil, err
	}
	item := &models.Item{ID: id, Price: 10, Condition: "Used", Bundle: models.BundleNo}
	if m.noImages {
		return item, nil, nil
	}
	return item, []*models.Image{{ListingID: id, Ordinal: 0, Path: "img/" + id.String() + ".jpg"}}, nil
}

func (m *mockExtractor) ExtractBids(_ context.Context, id models.ListingID, _ bool) ([]*models.Bid, error) {
	if err := m.bidErr[id]; err != nil {
		return nil, err
	}
	if m.noImages {
		return nil, nil
	}
	return []*models.Bid{{ListingID: id, UserID: "a***b", Amount: 5}}, nil
}

func (m *mockExtractor) IsFetchError(err error) bool {
	return errors.Is(err, errPageUnavailable)
}

type mockStore struct {
	mu          sync.Mutex
	items       []*models.Item
	images      []*models.Image
	bids        []*models.Bid
	calls       map[string]int
	failImagesN int
}

func newMockStore() *mockStore {
	return &mockStore{calls: make(map[string]int)}
}

func (s *mockStore) ExistingIDs(context.Context, []models.ListingID) ([]models.ListingID, error) {
	return nil, nil
}

func (s *mockStore) WriteItems(_ context.Context, items []*models.Item) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[models.TableMain]++
	s.items = append(s.items, items...)
	return len(items), nil
}

func (s *mockStore) WriteImages(_ context.Context, images []*models.Image) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[models.TableImages]++
	if s.calls[models.TableImages] == s.failImagesN {
		return 0, errors.New("disk full")
	}
	s.images = append(s.images, images...)
	return len(images), nil
}

func (s *mockStore) WriteBids(_ context.Context, bids []*models.Bid) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[models.TableBids]++
	s.bids = append(s.bids, bids...)
	return len(bids), nil
}

func (s *mockStore) Close() error { return nil }

type countingRecorder struct {
	batches     map[string]int
	quarantined map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{batches: make(map[string]int), quarantined: make(map[string]int)}
}

func (r *countingRecorder) IncBatch(state string)       { r.batches[state]++ }
func (r *countingRecorder) IncQuarantined(table string) { r.quarantined[table]++ }

func ids(values ...int64) []models.ListingID {
	out := make([]models.ListingID, len(values))
	for i, v := range values {
		out[i] = models.ListingID(v)
	}
	return out
}

func newTestIngestor(t *testing.T, extractor Extractor, store Store, recorder Recorder) *Ingestor {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.QuarantineDir = t.TempDir()
	in := NewIngestor(extractor, store, cfg, recorder)
	in.now = func() time.Time { return time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC) }
	return in
}

func TestIngestorQuarantinesOnlyFailedTable(t *testing.T) {
	store := newMockStore()
	store.failImagesN = 2
	recorder := newCountingRecorder()
	in := newTestIngestor(t, &mockExtractor{}, store, recorder)

	summary, err := in.Run(context.Background(), ids(1, 2, 3, 4, 5, 6), 2, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Batches != 3 {
		t.Fatalf("batches = %d, want 3", summary.Batches)
	}
	if summary.BatchesPersisted != 2 || summary.BatchesQuarantine != 1 {
		t.Fatalf("persisted/quarantined = %d/%d, want 2/1", summary.BatchesPersisted, summary.BatchesQuarantine)
	}
	if len(store.items) != 6 || len(store.bids) != 6 {
		t.Fatalf("items/bids stored = %d/%d, want 6/6", len(store.items), len(store.bids))
	}
	if len(store.images) != 4 {
		t.Fatalf("images stored = %d, want 4", len(store.images))
	}
	if summary.RowsPersisted[models.TableImages] != 4 {
		t.Fatalf("rows persisted imgs = %d, want 4", summary.RowsPersisted[models.TableImages])
	}

	if len(summary.QuarantineFiles) != 1 {
		t.Fatalf("quarantine files = %v, want 1", summary.QuarantineFiles)
	}
	path := summary.QuarantineFiles[0]
	if base := filepath.Base(path); base != "imgs_20210304_050607_batch2.jsonl" {
		t.Fatalf("quarantine file = %q", base)
	}
	if got := countLines(t, path); got != 2 {
		t.Fatalf("quarantined records = %d, want 2", got)
	}

	if recorder.quarantined[models.TableImages] != 1 || recorder.quarantined[models.TableMain] != 0 {
		t.Fatalf("quarantine recorder = %v", recorder.quarantined)
	}
	if recorder.batches[string(models.BatchPersisted)] != 2 || recorder.batches[string(models.BatchQuarantined)] != 1 {
		t.Fatalf("batch recorder = %v", recorder.batches)
	}
}

func TestIngestorPanicAbortsOnlyThatBatch(t *testing.T) {
	store := newMockStore()
	recorder := newCountingRecorder()
	in := newTestIngestor(t, &mockExtractor{panicOn: 3}, store, recorder)

	summary, err := in.Run(context.Background(), ids(1, 2, 3, 4, 5, 6), 2, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.BatchesAborted != 1 || summary.BatchesPersisted != 2 {
		t.Fatalf("aborted/persisted = %d/%d, want 1/2", summary.BatchesAborted, summary.BatchesPersisted)
	}
	var stored []models.ListingID
	for _, item := range store.items {
		stored = append(stored, item.ID)
	}
	if want := ids(1, 2, 5, 6); !equalIDs(stored, want) {
		t.Fatalf("stored = %v, want %v", stored, want)
	}
	if recorder.batches[string(models.BatchAborted)] != 1 {
		t.Fatalf("batch recorder = %v", recorder.batches)
	}
}

func TestIngestorFetchFailures(t *testing.T) {
	extractor := &mockExtractor{
		itemErr: map[models.ListingID]error{2: errPageUnavailable},
		bidErr:  map[models.ListingID]error{3: errPageUnavailable},
	}
	store := newMockStore()
	in := newTestIngestor(t, extractor, store, nil)

	summary, err := in.Run(context.Background(), ids(1, 2, 3), 10, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.ListingsDropped != 1 || summary.ItemsExtracted != 2 {
		t.Fatalf("dropped/extracted = %d/%d, want 1/2", summary.ListingsDropped, summary.ItemsExtracted)
	}
	if len(store.bids) != 1 || store.bids[0].ListingID != 1 {
		t.Fatalf("bids = %v, want only listing 1", store.bids)
	}

	metrics := in.GetMetrics()
	dropped, ok := metrics["dropped"].(map[string]int)
	if !ok {
		t.Fatalf("expected dropped map")
	}
	if dropped["detail_unavailable"] != 1 || dropped["bids_unavailable"] != 1 {
		t.Fatalf("dropped = %v", dropped)
	}
}

func TestIngestorNonFetchErrorAbortsBatch(t *testing.T) {
	extractor := &mockExtractor{itemErr: map[models.ListingID]error{2: errors.New("selector changed")}}
	store := newMockStore()
	in := newTestIngestor(t, extractor, store, nil)

	summary, err := in.Run(context.Background(), ids(1, 2, 3), 10, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.BatchesAborted != 1 {
		t.Fatalf("aborted = %d, want 1", summary.BatchesAborted)
	}
	if len(store.items) != 0 {
		t.Fatalf("items stored = %d, want 0", len(store.items))
	}
}

func TestIngestorSkipsEmptyTables(t *testing.T) {
	store := newMockStore()
	in := newTestIngestor(t, &mockExtractor{noImages: true}, store, nil)

	if _, err := in.Run(context.Background(), ids(7), 5, false); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.calls[models.TableMain] != 1 {
		t.Fatalf("main writes = %d, want 1", store.calls[models.TableMain])
	}
	if store.calls[models.TableImages] != 0 || store.calls[models.TableBids] != 0 {
		t.Fatalf("unexpected writes: %v", store.calls)
	}
}

func TestIngestorStopsBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	extractor := &mockExtractor{onItem: func(id models.ListingID) {
		if id == 2 {
			cancel()
		}
	}}
	store := newMockStore()
	in := newTestIngestor(t, extractor, store, nil)

	summary, err := in.Run(ctx, ids(1, 2, 3, 4), 2, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !summary.Interrupted {
		t.Fatalf("expected interrupted run")
	}
	if summary.Batches != 1 || len(store.items) != 2 {
		t.Fatalf("batches/items = %d/%d, want 1/2", summary.Batches, len(store.items))
	}
}

func TestIngestorRejectsBatchSize(t *testing.T) {
	in := newTestIngestor(t, &mockExtractor{}, newMockStore(), nil)
	if _, err := in.Run(context.Background(), ids(1), 0, false); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestWriteErrorUnwrap(t *testing.T) {
	cause := errors.New("constraint violation")
	err := error(&WriteError{Table: models.TableBids, Batch: 3, Err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if !strings.Contains(err.Error(), "bids") || !strings.Contains(err.Error(), "batch 3") {
		t.Fatalf("error = %q", err.Error())
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return n
}

func equalIDs(a, b []models.ListingID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
