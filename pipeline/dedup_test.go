package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/aluiziolira/go-scrape-auctions/models"
)

type fakeLookup struct {
	existing []models.ListingID
	err      error
	calls    int
}

func (f *fakeLookup) ExistingIDs(_ context.Context, ids []models.ListingID) ([]models.ListingID, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.ListingID
	for _, want := range f.existing {
		for _, id := range ids {
			if id == want {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func TestFilterNew(t *testing.T) {
	tests := []struct {
		name       string
		candidates []models.ListingID
		existing   []models.ListingID
		want       []models.ListingID
		wantCalls  int
	}{
		{name: "empty input skips lookup", candidates: nil, want: nil, wantCalls: 0},
		{name: "empty slice returned as is", candidates: ids(), want: ids(), wantCalls: 0},
		{name: "stored ids removed", candidates: ids(1, 2, 3), existing: ids(2), want: ids(1, 3), wantCalls: 1},
		{name: "repeats collapse", candidates: ids(4, 1, 4, 2), existing: ids(2), want: ids(4, 1), wantCalls: 1},
		{name: "all stored", candidates: ids(5, 6), existing: ids(6, 5), want: ids(), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &fakeLookup{existing: tt.existing}
			got, err := FilterNew(context.Background(), tt.candidates, lookup)
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if !equalIDs(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
			if lookup.calls != tt.wantCalls {
				t.Fatalf("lookup calls = %d, want %d", lookup.calls, tt.wantCalls)
			}
		})
	}
}

func TestFilterNewLookupError(t *testing.T) {
	cause := errors.New("connection refused")
	_, err := FilterNew(context.Background(), ids(1), &fakeLookup{err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestThrottle(t *testing.T) {
	all := make([]models.ListingID, 37)
	for i := range all {
		all[i] = models.ListingID(i + 1)
	}

	got := Throttle(all, 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	for i, id := range got {
		if id != models.ListingID(i+1) {
			t.Fatalf("got[%d] = %d, want %d", i, id, i+1)
		}
	}

	if got := Throttle(ids(1, 2), 50); len(got) != 2 {
		t.Fatalf("short input trimmed to %d", len(got))
	}
	if got := Throttle(all, 0); len(got) != 37 {
		t.Fatalf("unlimited throttle kept %d", len(got))
	}
}
