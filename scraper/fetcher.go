package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-auctions/config"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Fetcher retrieves pages and binary resources, either directly or through the fetch relay.
// Requests are issued one at a time.
type Fetcher struct {
	collector     *colly.Collector
	relayURL      string
	relayAPIKey   string
	relayLocation string
	pages         *lru.Cache[string, Document]
	metrics       *Metrics
}

// NewFetcher builds a synchronous collector configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})

	f := &Fetcher{
		collector:     collector,
		relayURL:      cfg.RelayURL,
		relayAPIKey:   cfg.RelayAPIKey,
		relayLocation: cfg.RelayLocation,
		metrics:       metrics,
	}
	if cfg.PageCacheSize > 0 {
		pages, err := lru.New[string, Document](cfg.PageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("page cache: %w", err)
		}
		f.pages = pages
	}
	return f, nil
}

// Fetch retrieves target and parses it into a Document.
func (f *Fetcher) Fetch(ctx context.Context, target string, useRelay bool) (Document, error) {
	if f.pages != nil {
		if doc, ok := f.pages.Get(target); ok {
			return doc, nil
		}
	}

	body, err := f.get(ctx, target, useRelay)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(body)
	if err != nil {
		f.metrics.IncError(errorTypeLabel(err))
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}

	if f.pages != nil {
		f.pages.Add(target, doc)
	}
	return doc, nil
}

// Download saves the bytes at target to path. Non-2xx responses write nothing.
func (f *Fetcher) Download(ctx context.Context, target, path string, useRelay bool) error {
	body, err := f.get(ctx, target, useRelay)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", path, err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, target string, useRelay bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyError(err, 0)
	}

	requestURL := target
	route := "direct"
	hdr := http.Header{}
	if useRelay {
		relayed, err := f.relayRequestURL(target)
		if err != nil {
			return nil, err
		}
		requestURL = relayed
		route = "relay"
		hdr.Set("apikey", f.relayAPIKey)
	}

	reqCtx := colly.NewContext()
	start := time.Now()
	f.metrics.IncRequest(route)
	err := f.collector.Request(http.MethodGet, requestURL, nil, reqCtx, hdr)
	f.metrics.ObserveDuration(time.Since(start))

	status, _ := reqCtx.GetAny("status").(int)
	if err != nil || status < 200 || status >= 300 {
		classified := classifyError(err, status)
		if classified == nil {
			classified = ErrConnection{Err: errors.New("no response")}
		}
		category := errorTypeLabel(classified)
		f.metrics.IncError(category)
		slog.Debug("fetch failed",
			slog.String("url", target),
			slog.String("route", route),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("get %s: %w", target, classified)
	}

	body, _ := reqCtx.GetAny("body").([]byte)
	return body, nil
}

func (f *Fetcher) relayRequestURL(target string) (string, error) {
	relay, err := url.Parse(f.relayURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	params := relay.Query()
	params.Set("url", target)
	if f.relayLocation != "" {
		params.Set("location", f.relayLocation)
	}
	relay.RawQuery = params.Encode()
	return relay.String(), nil
}
