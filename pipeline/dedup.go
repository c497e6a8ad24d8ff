package pipeline

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-auctions/models"
)

// Lookup reports which of the given ids are already stored.
type Lookup interface {
	ExistingIDs(ctx context.Context, ids []models.ListingID) ([]models.ListingID, error)
}

// FilterNew drops candidates the store already holds, keeping enumeration order.
// Repeated candidates collapse to their first occurrence. An empty input is
// returned as is and never reaches the store.
func FilterNew(ctx context.Context, candidates []models.ListingID, lookup Lookup) ([]models.ListingID, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	existing, err := lookup.ExistingIDs(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("lookup existing ids: %w", err)
	}

	seen := make(map[models.ListingID]struct{}, len(candidates)+len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	fresh := make([]models.ListingID, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh, nil
}

// Throttle keeps at most the first limit ids. A limit of 0 keeps all of them.
func Throttle(ids []models.ListingID, limit int) []models.ListingID {
	if limit <= 0 || len(ids) <= limit {
		return ids
	}
	return ids[:limit]
}
