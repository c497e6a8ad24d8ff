// Package models defines data structures for the scraper.
package models

import (
	"strconv"
	"time"
)

// Table names of the three persisted record sets.
const (
	TableMain   = "main"
	TableImages = "imgs"
	TableBids   = "bids"
)

// NotAvailable is the placeholder stored for text fields that could not be extracted.
const NotAvailable = "N/A"

// ListingID identifies a marketplace listing.
type ListingID int64

func (id ListingID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseListingID parses a decimal listing identifier.
func ParseListingID(s string) (ListingID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ListingID(v), nil
}

// Bundle reports whether a listing is a custom bundle.
type Bundle string

const (
	BundleYes     Bundle = "Yes"
	BundleNo      Bundle = "No"
	BundleUnknown Bundle = NotAvailable
)

// Item is one row of the main table. Nil numeric pointers mean the value is unknown.
type Item struct {
	ID            ListingID `json:"id"`
	Price         float64   `json:"price"`
	Condition     string    `json:"condition"`
	Bundle        Bundle    `json:"bundle"`
	Description   string    `json:"text"`
	SellerPercent *float64  `json:"seller_percent"`
	SellerScore   *int      `json:"seller_score"`
	RatingCount   *int      `json:"rating_count"`
	BidSummary    string    `json:"bid_summary"`
	BidDuration   string    `json:"bid_duration"`
}

// Image is one row of the imgs table: a successfully retrieved image.
type Image struct {
	ListingID ListingID `json:"id"`
	Ordinal   int       `json:"ordinal"`
	Path      string    `json:"url"`
}

// Bid is one row of the bids table.
type Bid struct {
	ListingID ListingID  `json:"id"`
	UserID    string     `json:"user_id"`
	Score     *int       `json:"score"`
	Amount    float64    `json:"bid"`
	Time      *time.Time `json:"datetime"`
}
