package parser

import (
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-auctions/models"
)

func TestCleanNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "dollar price",
			input:    "US $1,234.50",
			expected: "1234.50",
		},
		{
			name:     "with whitespace",
			input:    "  $10.50  ",
			expected: "10.50",
		},
		{
			name:     "already clean",
			input:    "25.99",
			expected: "25.99",
		},
		{
			name:     "thousands count",
			input:    "12,345",
			expected: "12345",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanNumber(tt.input); got != tt.expected {
				t.Errorf("CleanNumber(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseFloatRejectsText(t *testing.T) {
	if _, err := ParseFloat("Free shipping"); err == nil {
		t.Fatalf("expected error for non-numeric text")
	}
	got, err := ParseFloat("$49.99")
	if err != nil || got != 49.99 {
		t.Fatalf("ParseFloat($49.99) = %v, %v", got, err)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		count    int
		expected int
	}{
		{count: 0, expected: 0},
		{count: 1, expected: 1},
		{count: 50, expected: 1},
		{count: 51, expected: 2},
		{count: 100, expected: 2},
		{count: -3, expected: 0},
	}

	for _, tt := range tests {
		if got := TotalPages(tt.count, ResultsPerPage); got != tt.expected {
			t.Errorf("TotalPages(%d) = %d, want %d", tt.count, got, tt.expected)
		}
	}
}

func TestListingIDFromURL(t *testing.T) {
	tests := []struct {
		name    string
		link    string
		want    models.ListingID
		wantErr bool
	}{
		{
			name: "with tracking query",
			link: "https://www.ebay.com/itm/Super-Smash-Bros-Melee/114230556674?hash=item1a9c&epid=123",
			want: 114230556674,
		},
		{
			name: "bare",
			link: "https://www.ebay.com/itm/143595870217",
			want: 143595870217,
		},
		{
			name:    "not numeric",
			link:    "https://www.ebay.com/itm/melee?x=1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListingIDFromURL(tt.link)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ListingIDFromURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ListingIDFromURL() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFullSizeImageURL(t *testing.T) {
	in := "https://i.ebayimg.com/images/g/abc/s-l64.jpg"
	want := "https://i.ebayimg.com/images/g/abc/s-l1600.jpg"
	if got := FullSizeImageURL(in); got != want {
		t.Fatalf("FullSizeImageURL() = %q, want %q", got, want)
	}
}

func TestParseBidTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "with seconds and timezone",
			input: "Jan 3, 2021 at 4:05:06 PM PST",
			want:  time.Date(2021, time.January, 3, 16, 5, 6, 0, time.UTC),
		},
		{
			name:  "without timezone",
			input: " Dec 24, 2020 at 11:59:01 AM ",
			want:  time.Date(2020, time.December, 24, 11, 59, 1, 0, time.UTC),
		},
		{
			name:    "no separator",
			input:   "yesterday",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "soon at later",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBidTime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBidTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Fatalf("ParseBidTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestContainsLetter(t *testing.T) {
	if !ContainsLetter("12,50 EUR") {
		t.Fatalf("expected letters to be detected")
	}
	if ContainsLetter("12.50") {
		t.Fatalf("digits only should not report letters")
	}
}
