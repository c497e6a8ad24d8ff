package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-auctions/models"
	"github.com/aluiziolira/go-scrape-auctions/parser"
)

const (
	countSelector = ".srp-controls__count-heading"
	linkSelector  = ".s-item__link"
)

// Enumerator collects listing identifiers from paginated search results.
type Enumerator struct {
	fetcher  *Fetcher
	baseURL  string
	useRelay bool
	metrics  *Metrics
}

// NewEnumerator builds an Enumerator over fetcher.
func NewEnumerator(fetcher *Fetcher, baseURL string, useRelay bool, metrics *Metrics) *Enumerator {
	return &Enumerator{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(baseURL, "/"),
		useRelay: useRelay,
		metrics:  metrics,
	}
}

// Enumerate returns every listing id for query, page by page. Duplicates are kept.
// When the result count cannot be read the result is empty and a warning is logged.
func (e *Enumerator) Enumerate(ctx context.Context, query string, opts ListingOptions) ([]models.ListingID, error) {
	first := e.SearchURL(query, opts, 1)
	doc, err := e.fetcher.Fetch(ctx, first, e.useRelay)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	count, err := resultCount(doc)
	if err != nil {
		slog.Warn("could not read result count, treating search as empty",
			slog.String("query", query),
			slog.String("url", first),
			slog.Any("error", err),
		)
		e.metrics.IncError("count")
		count = 0
	}
	pages := parser.TotalPages(count, parser.ResultsPerPage)
	slog.Info("search results",
		slog.String("query", query),
		slog.Int("count", count),
		slog.Int("pages", pages),
	)

	var ids []models.ListingID
	for page := 1; page <= pages; page++ {
		if page > 1 {
			doc, err = e.fetcher.Fetch(ctx, e.SearchURL(query, opts, page), e.useRelay)
			if err != nil {
				slog.Error("search page failed, skipping",
					slog.String("query", query),
					slog.Int("page", page),
					slog.Any("error", err),
				)
				continue
			}
		}
		found := listingIDs(doc)
		e.metrics.AddListings(len(found))
		ids = append(ids, found...)
	}
	return ids, nil
}

// SearchURL builds the search URL for one result page.
func (e *Enumerator) SearchURL(query string, opts ListingOptions, page int) string {
	keywords := strings.Fields(query)
	for i, keyword := range keywords {
		keywords[i] = url.QueryEscape(keyword)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s/sch/i.html?_from=R40&_nkw=%s&_sacat=0", e.baseURL, strings.Join(keywords, "+"))
	if filters := opts.Query(); filters != "" {
		b.WriteString("&" + filters)
	}
	b.WriteString("&rt=nc")
	if page > 1 {
		fmt.Fprintf(&b, "&_pgn=%d", page)
	}
	return b.String()
}

func resultCount(doc Document) (int, error) {
	text, err := firstText(doc, countSelector)
	if err != nil {
		return 0, err
	}
	first, err := parser.FirstField(text)
	if err != nil {
		return 0, err
	}
	return parser.ParseInt(first)
}

func listingIDs(doc Document) []models.ListingID {
	links := doc.FindAll(linkSelector)
	ids := make([]models.ListingID, 0, len(links))
	for _, link := range links {
		href, ok := link.Attr("href")
		if !ok {
			continue
		}
		id, err := parser.ListingIDFromURL(href)
		if err != nil {
			slog.Debug("skipping result link", slog.String("href", href), slog.Any("error", err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
