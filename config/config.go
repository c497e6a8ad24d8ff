package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string
	RelayURL         string
	RelayAPIKey      string
	RelayLocation    string
	UseRelay         bool
	UserAgent        string
	Timeout          time.Duration
	RespectRobotsTxt bool
	PageCacheSize    int

	Query        string
	ListingType  string // all, offers, auction, or buy_now
	ShowOnly     string // "" or sold
	Location     string // "" or usa
	BidCompleted bool

	ImageSize   string // thumb or full
	DownloadDir string

	BatchSize int
	Throttle  int // 0 = unlimited

	Sink          string // postgres, csv, json, or dual
	DatabaseURL   string
	MaxDBConns    int
	OutputDir     string
	QuarantineDir string

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the marketplace target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.ebay.com",
		RelayURL:         "https://app.zenscrape.com/api/v1/get",
		RelayLocation:    "na",
		UseRelay:         false,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Timeout:          10 * time.Second,
		RespectRobotsTxt: false,
		PageCacheSize:    32,
		ListingType:      "all",
		ShowOnly:         "",
		Location:         "",
		BidCompleted:     false,
		ImageSize:        "thumb",
		DownloadDir:      "output/images",
		BatchSize:        25,
		Throttle:         50,
		Sink:             "csv",
		MaxDBConns:       2,
		OutputDir:        "output/tables",
		QuarantineDir:    "output/quarantine",
		Verbose:          false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if c.UseRelay {
		if err := validateURL("relay URL", c.RelayURL); err != nil {
			return err
		}
		if c.RelayAPIKey == "" {
			return fmt.Errorf("relay API key cannot be empty when the relay is enabled")
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageCacheSize < 0 {
		return fmt.Errorf("page cache size cannot be negative")
	}
	if c.ImageSize != "thumb" && c.ImageSize != "full" {
		return fmt.Errorf("image size must be thumb or full")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download dir cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Throttle < 0 {
		return fmt.Errorf("throttle cannot be negative")
	}
	switch c.Sink {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL cannot be empty for the postgres sink")
		}
		if c.MaxDBConns <= 0 {
			return fmt.Errorf("max db conns must be positive")
		}
	case "csv", "json", "dual":
		if c.OutputDir == "" {
			return fmt.Errorf("output dir cannot be empty")
		}
	default:
		return fmt.Errorf("sink must be postgres, csv, json, or dual")
	}
	if c.QuarantineDir == "" {
		return fmt.Errorf("quarantine dir cannot be empty")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
