// Package parser holds the text cleanup shared by every extractor.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/aluiziolira/go-scrape-auctions/models"
)

// ResultsPerPage is the number of listings the search page shows.
const ResultsPerPage = 50

// CleanNumber removes the currency prefix, thousands separators and surrounding whitespace.
func CleanNumber(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimLeftFunc(text, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '-' && r != '.'
	})
	text = strings.ReplaceAll(text, ",", "")
	return strings.TrimSpace(text)
}

// ParseFloat parses a price-like string such as "US $1,234.50".
func ParseFloat(text string) (float64, error) {
	cleaned := CleanNumber(text)
	if cleaned == "" {
		return 0, fmt.Errorf("no number in %q", text)
	}
	return strconv.ParseFloat(cleaned, 64)
}

// ParseInt parses a count-like string such as "1,234".
func ParseInt(text string) (int, error) {
	cleaned := CleanNumber(text)
	if cleaned == "" {
		return 0, fmt.Errorf("no number in %q", text)
	}
	return strconv.Atoi(cleaned)
}

// FirstField returns the first whitespace separated token of text.
func FirstField(text string) (string, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty text")
	}
	return fields[0], nil
}

// TotalPages is ceil(count / perPage) for non-negative counts.
func TotalPages(count, perPage int) int {
	if count <= 0 || perPage <= 0 {
		return 0
	}
	pages := count / perPage
	if count%perPage != 0 {
		pages++
	}
	return pages
}

// ListingIDFromURL takes the trailing path segment of a listing link, ignoring the query.
func ListingIDFromURL(link string) (models.ListingID, error) {
	address, _, _ := strings.Cut(link, "?")
	address = strings.TrimRight(address, "/")
	segment := address[strings.LastIndex(address, "/")+1:]
	id, err := models.ParseListingID(segment)
	if err != nil {
		return 0, fmt.Errorf("listing id from %q: %w", link, err)
	}
	return id, nil
}

// FullSizeImageURL rewrites a thumbnail URL to the full resolution variant.
func FullSizeImageURL(thumb string) string {
	return strings.Replace(thumb, "s-l64", "s-l1600", 1)
}

// ContainsLetter reports whether text has any letter in it.
func ContainsLetter(text string) bool {
	return strings.IndexFunc(text, unicode.IsLetter) >= 0
}

var bidTimeLayouts = []string{
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 02, 2006 03:04:05 PM",
	"2 Jan 2006 15:04:05",
	"02 Jan 2006 15:04:05",
}

// ParseBidTime parses the "<date> at <time> <TZ>" text of a bid row.
// The timezone abbreviation is discarded and the result is reported in UTC.
func ParseBidTime(text string) (time.Time, error) {
	date, clock, found := strings.Cut(text, " at ")
	if !found {
		return time.Time{}, fmt.Errorf("no date/time separator in %q", text)
	}
	date = strings.TrimSpace(date)
	clock = StripTimezone(strings.TrimSpace(clock))

	value := date + " " + clock
	for _, layout := range bidTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised bid time %q", value)
}

// StripTimezone drops a trailing timezone abbreviation such as "PST".
func StripTimezone(clock string) string {
	fields := strings.Fields(clock)
	if len(fields) < 2 {
		return clock
	}
	last := fields[len(fields)-1]
	switch strings.ToUpper(last) {
	case "AM", "PM":
		return strings.Join(fields, " ")
	}
	if strings.IndexFunc(last, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:len(fields)-1], " ")
}
