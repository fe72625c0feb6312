package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and MarkAlerted for unknown records.
var ErrNotFound = errors.New("inventory: record not found")

// batchChunkSize is the maximum number of records written atomically in one
// chunk. Chunks never span partitions.
const batchChunkSize = 100

// Store is the partitioned keyed persistence layer. Any keyed backing store
// can implement it; the repository ships a BadgerDB implementation.
type Store interface {
	// Upsert inserts or merges one record by (partition, key). Idempotent;
	// advances updated_at and preserves created_at and last_alert_sent.
	Upsert(ctx context.Context, rec KeyVaultObject) error

	// BatchUpsert groups records by partition, chunks each partition into
	// groups of at most 100, and writes each chunk atomically. Chunks are
	// independent: one failed chunk never discards the others. The returned
	// BatchResult reports every chunk's outcome even when err is non-nil.
	BatchUpsert(ctx context.Context, recs []KeyVaultObject) (BatchResult, error)

	// Get fetches one record.
	Get(ctx context.Context, vaultName, objectName string, typ ObjectType) (*KeyVaultObject, error)

	// Query returns the filtered page and the total match count. Counting
	// requires a full scan of matches; callers needing scale must add an
	// index layer on top.
	Query(ctx context.Context, f Filter, page, pageSize int) (*QueryResult, error)

	// KPISummary scans the full store and aggregates counts. The 30-day
	// bucket is a subset of the 60-day bucket: a record at 20 days remaining
	// increments both.
	KPISummary(ctx context.Context) (*KPISummary, error)

	// AlertHistory lists records alerted within the last days, optionally
	// restricted to one recipient matching either distribution_email or owner.
	AlertHistory(ctx context.Context, days int, recipient string) ([]AlertHistoryEntry, error)

	// MarkAlerted sets last_alert_sent for one record. This is the only
	// write path for alert state.
	MarkAlerted(ctx context.Context, vaultName, objectName string, typ ObjectType, at time.Time) error

	// Close releases store resources.
	Close() error
}

// QueryResult is one page of a filtered query.
type QueryResult struct {
	Items      []KeyVaultObject `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	HasNext    bool             `json:"has_next"`
}

// KPISummary aggregates counts over the full store.
type KPISummary struct {
	TotalSecrets      int `json:"total_secrets"`
	TotalCertificates int `json:"total_certificates"`
	Expiring30Days    int `json:"expiring_30_days"`
	Expiring60Days    int `json:"expiring_60_days"`
	AlertsSentToday   int `json:"alerts_sent_today"`
}

// AlertHistoryEntry is one past alert, reconstructed from record state.
type AlertHistoryEntry struct {
	ObjectName            string     `json:"object_name"`
	ObjectType            ObjectType `json:"object_type"`
	VaultName             string     `json:"vault_name"`
	Recipient             string     `json:"recipient,omitempty"`
	AlertSentAt           time.Time  `json:"alert_sent_at"`
	DaysRemainingWhenSent *int       `json:"days_remaining_when_sent,omitempty"`
	ExpirationDate        *time.Time `json:"expiration_date,omitempty"`
}

// ChunkResult is the outcome of one atomic chunk write.
type ChunkResult struct {
	Partition string
	Index     int
	Count     int
	Err       error
}

// BatchResult aggregates all chunk outcomes of a BatchUpsert.
type BatchResult struct {
	Written int
	Chunks  []ChunkResult
}

// Failed returns the chunks that did not commit.
func (r BatchResult) Failed() []ChunkResult {
	var failed []ChunkResult
	for _, c := range r.Chunks {
		if c.Err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}

// Err returns nil when every chunk committed, otherwise one error naming
// each failed partition/chunk.
func (r BatchResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(failed))
	for _, c := range failed {
		msgs = append(msgs, c.Err.Error())
	}
	return fmt.Errorf("%d of %d chunks failed: %s", len(failed), len(r.Chunks), strings.Join(msgs, "; "))
}

// chunkByPartition groups records by vault partition and splits each
// partition into chunks of at most batchChunkSize, preserving input order
// within a partition. Partition iteration order is sorted for determinism.
func chunkByPartition(recs []KeyVaultObject) []partitionChunk {
	byPartition := make(map[string][]KeyVaultObject)
	var order []string
	for _, rec := range recs {
		if _, seen := byPartition[rec.VaultName]; !seen {
			order = append(order, rec.VaultName)
		}
		byPartition[rec.VaultName] = append(byPartition[rec.VaultName], rec)
	}

	var chunks []partitionChunk
	for _, partition := range order {
		group := byPartition[partition]
		for i, idx := 0, 0; i < len(group); i, idx = i+batchChunkSize, idx+1 {
			end := i + batchChunkSize
			if end > len(group) {
				end = len(group)
			}
			chunks = append(chunks, partitionChunk{
				partition: partition,
				index:     idx,
				records:   group[i:end],
			})
		}
	}
	return chunks
}

type partitionChunk struct {
	partition string
	index     int
	records   []KeyVaultObject
}
