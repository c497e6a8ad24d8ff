package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-auctions/models"
	"github.com/aluiziolira/go-scrape-auctions/storage"
)

// File formats understood by FileStore.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// FileStore keeps the three tables as append-only files in one directory.
// Ids already present in the main table are loaded when the store opens.
type FileStore struct {
	format string
	dir    string

	csvItems, csvImages, csvBids    *CSVWriter
	jsonItems, jsonImages, jsonBids *JSONWriter

	mu       sync.Mutex
	existing map[models.ListingID]struct{}
}

// NewFileStore opens (or creates) the table files of format under dir.
func NewFileStore(dir, format string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	s := &FileStore{format: format, dir: dir, existing: make(map[models.ListingID]struct{})}
	if err := s.loadExisting(); err != nil {
		return nil, err
	}

	var err error
	switch format {
	case FormatCSV:
		err = s.openCSV()
	case FormatJSON:
		err = s.openJSON()
	default:
		return nil, fmt.Errorf("unknown file format %q", format)
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// TablePath is the file holding table in this store.
func (s *FileStore) TablePath(table string) string {
	ext := ".csv"
	if s.format == FormatJSON {
		ext = ".jsonl"
	}
	return filepath.Join(s.dir, table+ext)
}

func (s *FileStore) loadExisting() error {
	path := s.TablePath(models.TableMain)
	var ids []models.ListingID
	switch s.format {
	case FormatCSV:
		items, err := ReadItemsCSV(path)
		if err != nil {
			return fmt.Errorf("load existing ids: %w", err)
		}
		for _, item := range items {
			ids = append(ids, item.ID)
		}
	case FormatJSON:
		var err error
		if ids, err = readItemIDsJSON(path); err != nil {
			return fmt.Errorf("load existing ids: %w", err)
		}
	}
	for _, id := range ids {
		s.existing[id] = struct{}{}
	}
	return nil
}

func (s *FileStore) openCSV() error {
	var err error
	if s.csvItems, err = NewCSVWriter(s.TablePath(models.TableMain), itemHeader); err != nil {
		return err
	}
	if s.csvImages, err = NewCSVWriter(s.TablePath(models.TableImages), imageHeader); err != nil {
		return err
	}
	if s.csvBids, err = NewCSVWriter(s.TablePath(models.TableBids), bidHeader); err != nil {
		return err
	}
	return nil
}

func (s *FileStore) openJSON() error {
	var err error
	if s.jsonItems, err = NewJSONWriter(s.TablePath(models.TableMain)); err != nil {
		return err
	}
	if s.jsonImages, err = NewJSONWriter(s.TablePath(models.TableImages)); err != nil {
		return err
	}
	if s.jsonBids, err = NewJSONWriter(s.TablePath(models.TableBids)); err != nil {
		return err
	}
	return nil
}

// ExistingIDs returns the subset of ids present in the main table.
func (s *FileStore) ExistingIDs(_ context.Context, ids []models.ListingID) ([]models.ListingID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []models.ListingID
	for _, id := range ids {
		if _, ok := s.existing[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

// WriteItems appends rows to the main table. A batch holding an id that is
// already stored, or holding the same id twice, is rejected with storage.ErrDuplicateRow.
func (s *FileStore) WriteItems(_ context.Context, items []*models.Item) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[models.ListingID]struct{}, len(items))
	for _, item := range items {
		if _, ok := s.existing[item.ID]; ok {
			return 0, fmt.Errorf("%w: main id %d", storage.ErrDuplicateRow, item.ID)
		}
		if _, ok := batch[item.ID]; ok {
			return 0, fmt.Errorf("%w: main id %d repeated in batch", storage.ErrDuplicateRow, item.ID)
		}
		batch[item.ID] = struct{}{}
	}

	err := s.appendTable(models.TableMain, func() error {
		if s.format == FormatCSV {
			return s.csvItems.Write(itemRows(items))
		}
		return s.jsonItems.Write(toAny(items))
	})
	if err != nil {
		return 0, err
	}

	for id := range batch {
		s.existing[id] = struct{}{}
	}
	return len(items), nil
}

// WriteImages appends rows to the imgs table.
func (s *FileStore) WriteImages(_ context.Context, images []*models.Image) (int, error) {
	err := s.appendTable(models.TableImages, func() error {
		if s.format == FormatCSV {
			return s.csvImages.Write(imageRows(images))
		}
		return s.jsonImages.Write(toAny(images))
	})
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

// WriteBids appends rows to the bids table.
func (s *FileStore) WriteBids(_ context.Context, bids []*models.Bid) (int, error) {
	err := s.appendTable(models.TableBids, func() error {
		if s.format == FormatCSV {
			return s.csvBids.Write(bidRows(bids))
		}
		return s.jsonBids.Write(toAny(bids))
	})
	if err != nil {
		return 0, err
	}
	return len(bids), nil
}

// tableFile is an append-only table file that can be cut back to an earlier size.
type tableFile interface {
	Offset() (int64, error)
	Truncate(offset int64) error
}

func (s *FileStore) table(name string) tableFile {
	if s.format == FormatCSV {
		switch name {
		case models.TableMain:
			return s.csvItems
		case models.TableImages:
			return s.csvImages
		default:
			return s.csvBids
		}
	}
	switch name {
	case models.TableMain:
		return s.jsonItems
	case models.TableImages:
		return s.jsonImages
	default:
		return s.jsonBids
	}
}

// appendTable runs write and truncates the table back to its previous size when it fails.
func (s *FileStore) appendTable(name string, write func() error) error {
	offset, err := s.checkpoint(name)
	if err != nil {
		return err
	}
	if err := write(); err != nil {
		if rbErr := s.rollback(name, offset); rbErr != nil {
			return errors.Join(err, fmt.Errorf("roll back %s: %w", name, rbErr))
		}
		return err
	}
	return nil
}

func (s *FileStore) checkpoint(name string) (int64, error) {
	return s.table(name).Offset()
}

func (s *FileStore) rollback(name string, offset int64) error {
	return s.table(name).Truncate(offset)
}

// forget drops ids from the stored set after their rows were rolled back.
func (s *FileStore) forget(ids []models.ListingID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.existing, id)
	}
}

// Validate checks that every id written so far can be read back from the main table.
func (s *FileStore) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.existing) == 0 {
		return nil
	}

	path := s.TablePath(models.TableMain)
	var stored []models.ListingID
	if s.format == FormatCSV {
		if err := s.csvItems.Validate(); err != nil {
			return err
		}
		items, err := ReadItemsCSV(path)
		if err != nil {
			return fmt.Errorf("read main table: %w", err)
		}
		for _, item := range items {
			stored = append(stored, item.ID)
		}
	} else {
		if err := s.jsonItems.Validate(); err != nil {
			return err
		}
		var err error
		if stored, err = readItemIDsJSON(path); err != nil {
			return fmt.Errorf("read main table: %w", err)
		}
	}

	found := make(map[models.ListingID]struct{}, len(stored))
	for _, id := range stored {
		found[id] = struct{}{}
	}
	for id := range s.existing {
		if _, ok := found[id]; !ok {
			return fmt.Errorf("main table %s is missing id %d", path, id)
		}
	}
	return nil
}

// Close closes every open table file.
func (s *FileStore) Close() error {
	var errs []error
	for _, w := range []*CSVWriter{s.csvItems, s.csvImages, s.csvBids} {
		if w != nil {
			if err := w.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, w := range []*JSONWriter{s.jsonItems, s.jsonImages, s.jsonBids} {
		if w != nil {
			if err := w.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
