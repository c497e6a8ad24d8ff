package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-auctions/models"
	"github.com/aluiziolira/go-scrape-auctions/parser"
)

// Field names, used in logs and the fallback metric.
const (
	FieldPrice         = "price"
	FieldCondition     = "condition"
	FieldBundle        = "bundle"
	FieldDescription   = "description"
	FieldSellerPercent = "seller_percent"
	FieldSellerScore   = "seller_score"
	FieldRatingCount   = "rating_count"
	FieldBidSummary    = "bid_summary"
	FieldImages        = "images"
)

const (
	priceSelector        = ".notranslate"
	conditionSelector    = ".condText"
	bundleSelector       = ".prodDetailSec"
	descriptionFrameID   = "desc_ifr"
	descriptionBodyID    = "ds_div"
	feedbackPercentID    = "si-fb"
	feedbackScoreSel     = ".mbg-l"
	ratingCountSelector  = ".prodreview"
	bidSummarySelector   = ".app-bid-info_wrapper"
	bidDurationSeparator = "Duration:"
)

// DefaultItem returns the record every field falls back to.
func DefaultItem(id models.ListingID) *models.Item {
	return &models.Item{
		ID:            id,
		Price:         0,
		Condition:     models.NotAvailable,
		Bundle:        models.BundleUnknown,
		Description:   models.NotAvailable,
		SellerPercent: nil,
		SellerScore:   nil,
		RatingCount:   nil,
		BidSummary:    models.NotAvailable,
		BidDuration:   models.NotAvailable,
	}
}

// ItemExtractor turns a listing's detail page into an item record and its images.
type ItemExtractor struct {
	fetcher     *Fetcher
	baseURL     string
	imageSize   string
	downloadDir string
	metrics     *Metrics
}

// NewItemExtractor builds an ItemExtractor. imageSize is "thumb" or "full".
func NewItemExtractor(fetcher *Fetcher, baseURL, imageSize, downloadDir string, metrics *Metrics) *ItemExtractor {
	return &ItemExtractor{
		fetcher:     fetcher,
		baseURL:     strings.TrimRight(baseURL, "/"),
		imageSize:   imageSize,
		downloadDir: downloadDir,
		metrics:     metrics,
	}
}

// ItemURL is the detail page URL. Concluded auctions need extra flags to show the final price.
func (x *ItemExtractor) ItemURL(id models.ListingID, bidCompleted bool) string {
	if bidCompleted {
		return fmt.Sprintf("%s/itm/%d?nordt=true&orig_cvip=true", x.baseURL, id)
	}
	return fmt.Sprintf("%s/itm/%d", x.baseURL, id)
}

// Extract fetches the detail page once and fills every field independently.
// Only a failure to fetch the detail page itself is returned as an error.
func (x *ItemExtractor) Extract(ctx context.Context, id models.ListingID, useRelay, bidCompleted bool) (*models.Item, []*models.Image, error) {
	doc, err := x.fetcher.Fetch(ctx, x.ItemURL(id, bidCompleted), useRelay)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %d: %w", id, err)
	}

	item := DefaultItem(id)
	if v, err := parsePrice(doc); x.keep(id, err) {
		item.Price = v
	}
	if v, err := parseCondition(doc); x.keep(id, err) {
		item.Condition = v
	}
	if v, err := parseBundle(doc); x.keep(id, err) {
		item.Bundle = v
	}
	if v, err := x.parseDescription(ctx, doc, useRelay); x.keep(id, err) {
		item.Description = v
	}
	if v, err := parseFeedbackPercent(doc); x.keep(id, err) {
		item.SellerPercent = &v
	}
	if v, err := parseFeedbackScore(doc); x.keep(id, err) {
		item.SellerScore = &v
	}
	if v, err := parseRatingCount(doc); x.keep(id, err) {
		item.RatingCount = &v
	}
	if summary, duration, err := x.parseBidSummary(ctx, id, useRelay); x.keep(id, err) {
		item.BidSummary = summary
		item.BidDuration = duration
	}

	images := x.collectImages(ctx, id, doc, useRelay)
	x.metrics.IncItems()
	return item, images, nil
}

// keep reports whether a field parsed; failures are logged and counted.
func (x *ItemExtractor) keep(id models.ListingID, err error) bool {
	if err == nil {
		return true
	}
	field := "unknown"
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		field = extractionErr.Field
	}
	slog.Debug("field fell back to default",
		slog.String("listing", id.String()),
		slog.String("field", field),
		slog.Any("error", err),
	)
	x.metrics.IncFallback(field)
	return false
}

func parsePrice(doc Document) (float64, error) {
	text, err := firstText(doc, priceSelector)
	if err != nil {
		return 0, fieldErr(FieldPrice, err)
	}
	v, err := parser.ParseFloat(text)
	if err != nil {
		return 0, fieldErr(FieldPrice, err)
	}
	return v, nil
}

func parseCondition(doc Document) (string, error) {
	text, err := firstText(doc, conditionSelector)
	if err != nil {
		return "", fieldErr(FieldCondition, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fieldErr(FieldCondition, errors.New("empty condition"))
	}
	return text, nil
}

func parseBundle(doc Document) (models.Bundle, error) {
	text, err := firstText(doc, bundleSelector)
	if err != nil {
		return "", fieldErr(FieldBundle, err)
	}
	lines := strings.Split(text, "\n")
	has := func(want string) bool {
		for _, line := range lines {
			if strings.TrimSpace(line) == want {
				return true
			}
		}
		return false
	}
	switch {
	case has(string(models.BundleNo)):
		return models.BundleNo, nil
	case has(string(models.BundleYes)):
		return models.BundleYes, nil
	}
	return "", fieldErr(FieldBundle, errors.New("no yes/no answer in bundle section"))
}

// parseDescription follows the description frame to the seller's text.
func (x *ItemExtractor) parseDescription(ctx context.Context, doc Document, useRelay bool) (string, error) {
	frame, ok := doc.FindByID(descriptionFrameID)
	if !ok {
		return "", fieldErr(FieldDescription, errors.New("no description frame"))
	}
	src, ok := frame.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", fieldErr(FieldDescription, errors.New("description frame has no src"))
	}
	descDoc, err := x.fetcher.Fetch(ctx, src, useRelay)
	if err != nil {
		return "", fieldErr(FieldDescription, err)
	}
	body, ok := descDoc.FindByID(descriptionBodyID)
	if !ok {
		return "", fieldErr(FieldDescription, errors.New("no description body"))
	}
	return strings.TrimSpace(body.Text()), nil
}

func parseFeedbackPercent(doc Document) (float64, error) {
	node, ok := doc.FindByID(feedbackPercentID)
	if !ok {
		return 0, fieldErr(FieldSellerPercent, errors.New("no feedback element"))
	}
	percent, _, found := strings.Cut(node.Text(), "%")
	if !found {
		return 0, fieldErr(FieldSellerPercent, errors.New("no percent sign"))
	}
	v, err := parser.ParseFloat(percent)
	if err != nil {
		return 0, fieldErr(FieldSellerPercent, err)
	}
	return v, nil
}

func parseFeedbackScore(doc Document) (int, error) {
	text, err := firstText(doc, feedbackScoreSel)
	if err != nil {
		return 0, fieldErr(FieldSellerScore, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	v, err := parser.ParseInt(strings.Trim(line, "() "))
	if err != nil {
		return 0, fieldErr(FieldSellerScore, err)
	}
	return v, nil
}

func parseRatingCount(doc Document) (int, error) {
	text, err := firstText(doc, ratingCountSelector)
	if err != nil {
		return 0, fieldErr(FieldRatingCount, err)
	}
	first, err := parser.FirstField(text)
	if err != nil {
		return 0, fieldErr(FieldRatingCount, err)
	}
	v, err := parser.ParseInt(first)
	if err != nil {
		return 0, fieldErr(FieldRatingCount, err)
	}
	return v, nil
}

// parseBidSummary reads the summary block of the bid-history page.
func (x *ItemExtractor) parseBidSummary(ctx context.Context, id models.ListingID, useRelay bool) (string, string, error) {
	doc, err := x.fetcher.Fetch(ctx, BidHistoryURL(x.baseURL, id), useRelay)
	if err != nil {
		return "", "", fieldErr(FieldBidSummary, err)
	}
	summary, err := firstText(doc, bidSummarySelector)
	if err != nil {
		return "", "", fieldErr(FieldBidSummary, err)
	}
	parts := strings.Split(summary, bidDurationSeparator)
	duration := strings.TrimSpace(parts[len(parts)-1])
	return strings.TrimSpace(summary), duration, nil
}
