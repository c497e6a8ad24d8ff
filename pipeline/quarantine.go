package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// quarantineStamp gives artifact names second precision.
const quarantineStamp = "20060102_150405"

type quarantined struct {
	table   string
	batch   int
	records []any
}

// Quarantine holds record sets whose write failed until they are spooled to disk.
type Quarantine struct {
	dir     string
	mu      sync.Mutex
	entries []quarantined
}

// NewQuarantine creates an empty quarantine spooling into dir.
func NewQuarantine(dir string) *Quarantine {
	return &Quarantine{dir: dir}
}

// Add queues a failed record set.
func (q *Quarantine) Add(table string, batch int, records []any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, quarantined{table: table, batch: batch, records: records})
}

// Len reports the number of queued record sets.
func (q *Quarantine) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Flush writes every queued record set to its own JSONL file and empties the queue.
// A failing artifact does not stop the others; all errors are joined.
func (q *Quarantine) Flush(runStart time.Time) ([]string, error) {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	var (
		paths []string
		errs  []error
	)
	for _, entry := range entries {
		path := filepath.Join(q.dir, ArtifactName(entry.table, runStart, entry.batch))
		if err := writeArtifact(path, entry.records); err != nil {
			errs = append(errs, fmt.Errorf("quarantine %s: %w", entry.table, err))
			continue
		}
		slog.Warn("quarantined records written",
			slog.String("table", entry.table),
			slog.Int("batch", entry.batch),
			slog.Int("records", len(entry.records)),
			slog.String("path", path),
		)
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

// ArtifactName names the file holding one table's failed records of one batch.
func ArtifactName(table string, runStart time.Time, batch int) string {
	return fmt.Sprintf("%s_%s_batch%d.jsonl", table, runStart.Format(quarantineStamp), batch)
}

func writeArtifact(path string, records []any) error {
	w, err := NewJSONWriter(path)
	if err != nil {
		return err
	}
	if err := w.Write(records); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
