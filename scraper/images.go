package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-auctions/models"
	"github.com/aluiziolira/go-scrape-auctions/parser"
)

const (
	thumbnailSelector = ".tdThumb"
	imageURLPrefix    = "https://i.ebayimg.com/images/g/"
)

// ImageURLs gathers the distinct image URLs of the thumbnail strip in page order.
// With size "full" thumbnails are rewritten to the full resolution variant.
func ImageURLs(doc Document, size string) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, thumb := range doc.FindAll(thumbnailSelector) {
		raw := thumb.HTML()
		start := strings.Index(raw, imageURLPrefix)
		if start < 0 {
			continue
		}
		end := strings.IndexAny(raw[start:], "\"' ")
		if end < 0 {
			end = len(raw) - start
		}
		u := raw[start : start+end]
		if size == "full" {
			u = parser.FullSizeImageURL(u)
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// collectImages downloads each candidate image and keeps the ones that were retrieved.
func (x *ItemExtractor) collectImages(ctx context.Context, id models.ListingID, doc Document, useRelay bool) []*models.Image {
	urls := ImageURLs(doc, x.imageSize)
	if len(urls) == 0 {
		x.metrics.IncFallback(FieldImages)
	}

	images := make([]*models.Image, 0, len(urls))
	for i, u := range urls {
		path := filepath.Join(x.downloadDir, fmt.Sprintf("%d%s_%d.jpg", id, x.imageSize, i))
		if err := x.fetcher.Download(ctx, u, path, useRelay); err != nil {
			slog.Debug("image not retrieved",
				slog.String("listing", id.String()),
				slog.Int("image", i),
				slog.String("url", u),
				slog.Any("error", err),
			)
			x.metrics.IncImage("failed")
			continue
		}
		x.metrics.IncImage("saved")
		images = append(images, &models.Image{ListingID: id, Ordinal: i, Path: path})
	}
	return images
}
