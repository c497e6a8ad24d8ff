package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-auctions/models"
)

// DualStore writes every table as both CSV and JSONL.
// Existing ids are the union of both main tables.
type DualStore struct {
	csv  *FileStore
	json *FileStore
	mu   sync.Mutex
}

// NewDualStore opens a csv and a json store under dir.
func NewDualStore(dir string) (*DualStore, error) {
	csvStore, err := NewFileStore(filepath.Join(dir, FormatCSV), FormatCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV store: %w", err)
	}

	jsonStore, err := NewFileStore(filepath.Join(dir, FormatJSON), FormatJSON)
	if err != nil {
		csvStore.Close()
		return nil, fmt.Errorf("failed to create JSON store: %w", err)
	}

	return &DualStore{csv: csvStore, json: jsonStore}, nil
}

// ExistingIDs returns ids present in either main table.
func (d *DualStore) ExistingIDs(ctx context.Context, ids []models.ListingID) ([]models.ListingID, error) {
	inCSV, err := d.csv.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	inJSON, err := d.json.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return append(inCSV, inJSON...), nil
}

// WriteItems writes the main table in both formats.
func (d *DualStore) WriteItems(ctx context.Context, items []*models.Item) (int, error) {
	ids := make([]models.ListingID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return d.both(models.TableMain, ids,
		func() (int, error) { return d.csv.WriteItems(ctx, items) },
		func() (int, error) { return d.json.WriteItems(ctx, items) },
	)
}

// WriteImages writes the imgs table in both formats.
func (d *DualStore) WriteImages(ctx context.Context, images []*models.Image) (int, error) {
	return d.both(models.TableImages, nil,
		func() (int, error) { return d.csv.WriteImages(ctx, images) },
		func() (int, error) { return d.json.WriteImages(ctx, images) },
	)
}

// WriteBids writes the bids table in both formats.
func (d *DualStore) WriteBids(ctx context.Context, bids []*models.Bid) (int, error) {
	return d.both(models.TableBids, nil,
		func() (int, error) { return d.csv.WriteBids(ctx, bids) },
		func() (int, error) { return d.json.WriteBids(ctx, bids) },
	)
}

// both writes table to CSV then JSON. A JSON failure cuts the CSV table back,
// so the set is either in both formats or in neither.
func (d *DualStore) both(table string, ids []models.ListingID, toCSV, toJSON func() (int, error)) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset, err := d.csv.checkpoint(table)
	if err != nil {
		return 0, fmt.Errorf("CSV checkpoint failed: %w", err)
	}
	n, err := toCSV()
	if err != nil {
		return 0, fmt.Errorf("CSV write failed: %w", err)
	}
	if _, err := toJSON(); err != nil {
		err = fmt.Errorf("JSON write failed: %w", err)
		if rbErr := d.csv.rollback(table, offset); rbErr != nil {
			return 0, errors.Join(err, fmt.Errorf("CSV rollback failed: %w", rbErr))
		}
		d.csv.forget(ids)
		return 0, err
	}
	return n, nil
}

// Validate validates both stores.
func (d *DualStore) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.csv.Validate(); err != nil {
		return fmt.Errorf("CSV validation failed: %w", err)
	}
	if err := d.json.Validate(); err != nil {
		return fmt.Errorf("JSON validation failed: %w", err)
	}
	return nil
}

// Close closes both stores.
func (d *DualStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if err := d.csv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}
	if err := d.json.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}
