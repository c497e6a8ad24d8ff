package scraper

import (
	"fmt"
	"strings"
)

var listingTypeFragments = map[string]string{
	"all":     "LH_All=1",
	"offers":  "LH_BO=1",
	"auction": "LH_Auction=1",
	"buy_now": "LH_BIN=1",
}

var showOnlyFragments = map[string]string{
	"":     "",
	"sold": "LH_Sold=1&LH_Complete=1",
}

var locationFragments = map[string]string{
	"":    "",
	"usa": "LH_PrefLoc=1",
}

// ListingOptions are the search filters applied on top of the free-text query.
// Build one with NewListingOptions; the zero value searches all listing types.
type ListingOptions struct {
	listingType string
	showOnly    string
	location    string
}

// NewListingOptions validates the filters. Values are case-insensitive.
func NewListingOptions(listingType, showOnly, location string) (ListingOptions, error) {
	listingType = strings.ToLower(strings.TrimSpace(listingType))
	showOnly = strings.ToLower(strings.TrimSpace(showOnly))
	location = strings.ToLower(strings.TrimSpace(location))

	if listingType == "" {
		listingType = "all"
	}
	if _, ok := listingTypeFragments[listingType]; !ok {
		return ListingOptions{}, fmt.Errorf("listing type %q: want all, offers, auction, or buy_now", listingType)
	}
	if _, ok := showOnlyFragments[showOnly]; !ok {
		return ListingOptions{}, fmt.Errorf("show only %q: want empty or sold", showOnly)
	}
	if _, ok := locationFragments[location]; !ok {
		return ListingOptions{}, fmt.Errorf("location %q: want empty or usa", location)
	}
	return ListingOptions{listingType: listingType, showOnly: showOnly, location: location}, nil
}

// ListingType returns the listing type filter.
func (o ListingOptions) ListingType() string {
	if o.listingType == "" {
		return "all"
	}
	return o.listingType
}

// ShowOnly returns the sold filter.
func (o ListingOptions) ShowOnly() string { return o.showOnly }

// Location returns the location filter.
func (o ListingOptions) Location() string { return o.location }

// Query joins the non-empty query-string fragments of the filters.
func (o ListingOptions) Query() string {
	fragments := []string{
		listingTypeFragments[o.ListingType()],
		showOnlyFragments[o.showOnly],
		locationFragments[o.location],
	}
	out := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		if fragment != "" {
			out = append(out, fragment)
		}
	}
	return strings.Join(out, "&")
}
