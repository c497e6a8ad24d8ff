package models

import "time"

// BatchState tracks a batch through extraction and persistence.
type BatchState string

const (
	BatchPending     BatchState = "pending"
	BatchExtracted   BatchState = "extracted"
	BatchPersisted   BatchState = "persisted"
	BatchQuarantined BatchState = "quarantined"
	BatchAborted     BatchState = "aborted"
	BatchDone        BatchState = "done"
)

// BatchResult groups the records built for one batch. It lives only for that batch.
type BatchResult struct {
	Index       int
	IDs         []ListingID
	Items       []*Item
	Images      []*Image
	Bids        []*Bid
	Dropped     []ListingID
	State       BatchState
	Quarantined []string
	Err         error
}

// RunSummary holds the overall result of an ingestion run.
type RunSummary struct {
	StartTime         time.Time
	EndTime           time.Time
	Candidates        int
	Processed         int
	ItemsExtracted    int
	ListingsDropped   int
	Batches           int
	BatchesPersisted  int
	BatchesQuarantine int
	BatchesAborted    int
	RowsPersisted     map[string]int
	QuarantineFiles   []string
	Interrupted       bool
}
