package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-auctions/models"
	"github.com/aluiziolira/go-scrape-auctions/parser"
)

const (
	bidRowSelector = ".ui-component-table_tr_detailinfo"
	bidUserWidth   = 5
	startingBidTag = "start"
)

var errWithdrawnBid = errors.New("bid cancelled or retracted")

// BidHistoryURL is the bid-history page of a listing.
func BidHistoryURL(baseURL string, id models.ListingID) string {
	return fmt.Sprintf("%s/bfl/viewbids/%d?item=%d", strings.TrimRight(baseURL, "/"), id, id)
}

// BidExtractor parses the bid-history page of a listing.
type BidExtractor struct {
	fetcher *Fetcher
	baseURL string
	metrics *Metrics
}

// NewBidExtractor builds a BidExtractor over fetcher.
func NewBidExtractor(fetcher *Fetcher, baseURL string, metrics *Metrics) *BidExtractor {
	return &BidExtractor{fetcher: fetcher, baseURL: baseURL, metrics: metrics}
}

// Extract returns the listing's valid bids in page order.
func (b *BidExtractor) Extract(ctx context.Context, id models.ListingID, useRelay bool) ([]*models.Bid, error) {
	doc, err := b.fetcher.Fetch(ctx, BidHistoryURL(b.baseURL, id), useRelay)
	if err != nil {
		return nil, fmt.Errorf("bid history %d: %w", id, err)
	}
	bids := ParseBids(id, doc)
	b.metrics.AddBids(len(bids))
	return bids, nil
}

// ParseBids parses every bid row of doc, dropping withdrawn and malformed rows.
func ParseBids(id models.ListingID, doc Document) []*models.Bid {
	var bids []*models.Bid
	for i, row := range doc.FindAll(bidRowSelector) {
		bid, err := parseBidRow(id, row)
		if err != nil {
			slog.Debug("dropping bid row",
				slog.String("listing", id.String()),
				slog.Int("row", i),
				slog.Any("error", err),
			)
			continue
		}
		bids = append(bids, bid)
	}
	return bids
}

func parseBidRow(id models.ListingID, row Node) (*models.Bid, error) {
	raw := row.HTML()
	if strings.Contains(raw, "Cancelled") || strings.Contains(raw, "Retracted") {
		return nil, errWithdrawnBid
	}

	text := strings.Join(strings.Fields(row.Text()), " ")
	user := text
	if runes := []rune(text); len(runes) > bidUserWidth {
		user = string(runes[:bidUserWidth])
	}

	if strings.Count(text, "$") != 1 {
		return nil, fmt.Errorf("want one currency marker in %q", text)
	}
	feedbackChunk, amountChunk, _ := strings.Cut(text, "$")

	bid := &models.Bid{ListingID: id, UserID: user}
	if !strings.EqualFold(user, startingBidTag) {
		score, err := bidderScore(feedbackChunk)
		if err != nil {
			return nil, err
		}
		bid.Score = &score
	}

	dec := strings.Index(amountChunk, ".")
	if dec < 0 || dec+3 > len(amountChunk) {
		return nil, fmt.Errorf("no decimal amount in %q", amountChunk)
	}
	amount := amountChunk[:dec+3]
	if parser.ContainsLetter(amount) {
		// Another currency's formatting; the amount is not comparable.
		bid.Amount = 0
	} else {
		v, err := parser.ParseFloat(amount)
		if err != nil {
			return nil, fmt.Errorf("bid amount %q: %w", amount, err)
		}
		bid.Amount = v
	}

	if t, err := parser.ParseBidTime(amountChunk[dec+3:]); err == nil {
		bid.Time = &t
	}
	return bid, nil
}

// bidderScore reads the feedback score from text like "a***e ( 1,234 )".
func bidderScore(chunk string) (int, error) {
	parts := strings.Split(chunk, "(")
	fields := strings.Fields(strings.ReplaceAll(parts[len(parts)-1], ")", " "))
	if len(fields) == 0 {
		return 0, fmt.Errorf("no bidder score in %q", chunk)
	}
	last := fields[len(fields)-1]
	score, err := strconv.Atoi(strings.ReplaceAll(last, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("bidder score %q: %w", last, err)
	}
	return score, nil
}
