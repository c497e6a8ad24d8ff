package scraper

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aluiziolira/go-scrape-auctions/config"
	"github.com/aluiziolira/go-scrape-auctions/models"
)

// Scraper wires the fetcher and the extractors for one marketplace.
type Scraper struct {
	cfg        *config.Config
	fetcher    *Fetcher
	enumerator *Enumerator
	items      *ItemExtractor
	bids       *BidExtractor
	Metrics    *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:        cfg,
		fetcher:    fetcher,
		enumerator: NewEnumerator(fetcher, cfg.BaseURL, cfg.UseRelay, metrics),
		items:      NewItemExtractor(fetcher, cfg.BaseURL, cfg.ImageSize, cfg.DownloadDir, metrics),
		bids:       NewBidExtractor(fetcher, cfg.BaseURL, metrics),
		Metrics:    metrics,
	}, nil
}

// Enumerate lists the identifiers matching query.
func (s *Scraper) Enumerate(ctx context.Context, query string, opts ListingOptions) ([]models.ListingID, error) {
	return s.enumerator.Enumerate(ctx, query, opts)
}

// ExtractItem builds the item record and the retrieved images of one listing.
func (s *Scraper) ExtractItem(ctx context.Context, id models.ListingID, useRelay, bidCompleted bool) (*models.Item, []*models.Image, error) {
	return s.items.Extract(ctx, id, useRelay, bidCompleted)
}

// ExtractBids parses the bid history of one listing.
func (s *Scraper) ExtractBids(ctx context.Context, id models.ListingID, useRelay bool) ([]*models.Bid, error) {
	return s.bids.Extract(ctx, id, useRelay)
}

// IsFetchError classifies errors returned by ExtractItem and ExtractBids.
func (s *Scraper) IsFetchError(err error) bool {
	return IsFetchError(err)
}
