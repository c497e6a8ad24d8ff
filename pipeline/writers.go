package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-auctions/models"
)

// Column layout of the three tables in CSV form.
var (
	itemHeader  = []string{"id", "price", "condition", "bundle", "text", "seller_percent", "seller_score", "rating_count", "bid_summary", "bid_duration"}
	imageHeader = []string{"id", "ordinal", "url"}
	bidHeader   = []string{"id", "user_id", "score", "bid", "datetime"}
)

// CSVWriter appends rows to a CSV file, writing the header only when the file is new.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter opens filename for appending.
func NewCSVWriter(filename string, header []string) (*CSVWriter, error) {
	f, err := openAppend(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends rows and flushes them to disk.
func (cw *CSVWriter) Write(rows [][]string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Offset is the current end of the file.
func (cw *CSVWriter) Offset() (int64, error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	info, err := cw.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat csv file: %w", err)
	}
	return info.Size(), nil
}

// Truncate drops everything written after offset, including unflushed rows.
func (cw *CSVWriter) Truncate(offset int64) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer = csv.NewWriter(cw.file)
	if err := cw.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncate csv file: %w", err)
	}
	return nil
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter appends newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := openAppend(filename)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []any) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		if err := jw.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Offset is the current end of the file.
func (jw *JSONWriter) Offset() (int64, error) {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	info, err := jw.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat json file: %w", err)
	}
	return info.Size(), nil
}

// Truncate drops everything written after offset, including buffered records.
func (jw *JSONWriter) Truncate(offset int64) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.writer.Reset(jw.file)
	if err := jw.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncate json file: %w", err)
	}
	return nil
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func itemRows(items []*models.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID.String(),
			formatFloat(item.Price),
			item.Condition,
			string(item.Bundle),
			item.Description,
			formatOptionalFloat(item.SellerPercent),
			formatOptionalInt(item.SellerScore),
			formatOptionalInt(item.RatingCount),
			item.BidSummary,
			item.BidDuration,
		})
	}
	return rows
}

func imageRows(images []*models.Image) [][]string {
	rows := make([][]string, 0, len(images))
	for _, img := range images {
		rows = append(rows, []string{img.ListingID.String(), strconv.Itoa(img.Ordinal), img.Path})
	}
	return rows
}

func bidRows(bids []*models.Bid) [][]string {
	rows := make([][]string, 0, len(bids))
	for _, bid := range bids {
		ts := ""
		if bid.Time != nil {
			ts = bid.Time.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			bid.ListingID.String(),
			bid.UserID,
			formatOptionalInt(bid.Score),
			formatFloat(bid.Amount),
			ts,
		})
	}
	return rows
}

// ReadItemsCSV reads a main table written by CSVWriter. A missing file yields no items.
func ReadItemsCSV(filename string) ([]*models.Item, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(itemHeader)

	var items []*models.Item
	for line := 0; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		if line == 0 && record[0] == itemHeader[0] {
			continue
		}
		item, err := parseItemRecord(record)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line+1, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// readItemIDsJSON collects the ids of a JSONL main table. A missing file yields no ids.
func readItemIDsJSON(filename string) ([]models.ListingID, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()

	var ids []models.ListingID
	decoder := json.NewDecoder(f)
	for {
		var row struct {
			ID models.ListingID `json:"id"`
		}
		if err := decoder.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode json record: %w", err)
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func parseItemRecord(record []string) (*models.Item, error) {
	id, err := models.ParseListingID(record[0])
	if err != nil {
		return nil, fmt.Errorf("id %q: %w", record[0], err)
	}
	price, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", record[1], err)
	}
	item := &models.Item{
		ID:          id,
		Price:       price,
		Condition:   record[2],
		Bundle:      models.Bundle(record[3]),
		Description: record[4],
		BidSummary:  record[8],
		BidDuration: record[9],
	}
	if item.SellerPercent, err = parseOptionalFloat(record[5]); err != nil {
		return nil, fmt.Errorf("seller_percent: %w", err)
	}
	if item.SellerScore, err = parseOptionalInt(record[6]); err != nil {
		return nil, fmt.Errorf("seller_score: %w", err)
	}
	if item.RatingCount, err = parseOptionalInt(record[7]); err != nil {
		return nil, fmt.Errorf("rating_count: %w", err)
	}
	return item, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func openAppend(filename string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
