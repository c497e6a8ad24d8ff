// Package storage persists listing records in PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-scrape-auctions/models"
)

// ErrDuplicateRow reports an insert that hit an existing primary key.
var ErrDuplicateRow = errors.New("duplicate row")

const uniqueViolation = "23505"

const (
	insertItemSQL = `INSERT INTO main
		(id, price, condition, bundle, text, seller_percent, seller_score, rating_count, bid_summary, bid_duration)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	insertImageSQL = `INSERT INTO imgs (id, url) VALUES ($1,$2)`
	insertBidSQL   = `INSERT INTO bids (id, user_id, score, bid, datetime) VALUES ($1,$2,$3,$4,$5)`
	existingIDsSQL = `SELECT id FROM main WHERE id = ANY($1::bigint[])`
)

// PostgresStore writes into existing main, imgs and bids tables. Each table is written
// inside its own transaction, so a failed table leaves no partial rows behind.
// Duplicate main ids surface as ErrDuplicateRow.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn with at most maxConns connections.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// ExistingIDs returns the subset of ids present in the main table.
func (s *PostgresStore) ExistingIDs(ctx context.Context, ids []models.ListingID) ([]models.ListingID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, existingIDsSQL, int64IDs(ids))
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	defer rows.Close()

	var found []models.ListingID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing id: %w", err)
		}
		found = append(found, models.ListingID(id))
	}
	return found, rows.Err()
}

// WriteItems inserts rows into main.
func (s *PostgresStore) WriteItems(ctx context.Context, items []*models.Item) (int, error) {
	args := make([][]any, len(items))
	for i, item := range items {
		args[i] = itemArgs(item)
	}
	return s.insertAll(ctx, insertItemSQL, args)
}

// WriteImages inserts rows into imgs.
func (s *PostgresStore) WriteImages(ctx context.Context, images []*models.Image) (int, error) {
	args := make([][]any, len(images))
	for i, img := range images {
		args[i] = imageArgs(img)
	}
	return s.insertAll(ctx, insertImageSQL, args)
}

// WriteBids inserts rows into bids.
func (s *PostgresStore) WriteBids(ctx context.Context, bids []*models.Bid) (int, error) {
	args := make([][]any, len(bids))
	for i, bid := range bids {
		args[i] = bidArgs(bid)
	}
	return s.insertAll(ctx, insertBidSQL, args)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// insertAll queues every row in one batch and commits only when all of them succeed.
func (s *PostgresStore) insertAll(ctx context.Context, sql string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	total := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, args := range rows {
			b.Queue(sql, args...)
		}
		br := tx.SendBatch(ctx, b)
		for range rows {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return err
			}
			total += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, classifyPgError(err)
	}
	return total, nil
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", ErrDuplicateRow, err)
	}
	return err
}

func itemArgs(item *models.Item) []any {
	return []any{
		int64(item.ID),
		item.Price,
		item.Condition,
		string(item.Bundle),
		item.Description,
		item.SellerPercent,
		item.SellerScore,
		item.RatingCount,
		item.BidSummary,
		item.BidDuration,
	}
}

func imageArgs(img *models.Image) []any {
	return []any{int64(img.ListingID), img.Path}
}

func bidArgs(bid *models.Bid) []any {
	return []any{int64(bid.ListingID), bid.UserID, bid.Score, bid.Amount, bid.Time}
}

func int64IDs(ids []models.ListingID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
