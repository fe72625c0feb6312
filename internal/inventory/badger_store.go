package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	vwerrors "github.com/vaultwatch/vaultwatch/internal/errors"
	"github.com/vaultwatch/vaultwatch/internal/logging"
)

// Validate that BadgerStore implements the Store interface
var _ Store = (*BadgerStore)(nil)

const (
	keyPrefix = "inv:"

	// upsertRetries bounds retries of a single-record transaction that lost
	// a conflict. Last writer wins.
	upsertRetries = 3
)

// BadgerStore implements Store on an embedded BadgerDB. Records are stored
// as JSON under inv:<vault>:<objectName>_<objectType>, so a prefix scan over
// one vault covers exactly one partition.
type BadgerStore struct {
	db     *badger.DB
	logger *logging.Logger
	now    func() time.Time
}

// NewBadgerStore opens (or creates) the store at path. An empty path opens
// an in-memory store, used by tests.
func NewBadgerStore(path string, logger *logging.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = logging.New(false, true)
	}
	logger = logger.WithComponent("store")

	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(&badgerLogAdapter{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	logger.Debug("inventory store opened at %q", path)
	return &BadgerStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func recordKey(vaultName, rowKey string) []byte {
	return []byte(keyPrefix + vaultName + ":" + rowKey)
}

// Upsert inserts or merges one record.
func (s *BadgerStore) Upsert(ctx context.Context, rec KeyVaultObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt < upsertRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			return s.upsertInTxn(txn, rec)
		})
		if err != badger.ErrConflict {
			break
		}
	}
	if err != nil {
		return vwerrors.StoreWriteError{Partition: rec.VaultName, Err: err}
	}
	return nil
}

func (s *BadgerStore) upsertInTxn(txn *badger.Txn, rec KeyVaultObject) error {
	now := s.now().UTC()
	key := recordKey(rec.VaultName, rec.Key())

	stored := rec
	item, err := txn.Get(key)
	switch err {
	case nil:
		var existing KeyVaultObject
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		}); err != nil {
			return fmt.Errorf("failed to decode existing record: %w", err)
		}
		stored = merge(&existing, &rec, now)
	case badger.ErrKeyNotFound:
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
	default:
		return fmt.Errorf("failed to read existing record: %w", err)
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	return txn.Set(key, data)
}

// BatchUpsert writes each partition chunk as one atomic transaction. A
// failed chunk is reported in the result and does not stop the remaining
// chunks.
func (s *BadgerStore) BatchUpsert(ctx context.Context, recs []KeyVaultObject) (BatchResult, error) {
	var result BatchResult

	for _, chunk := range chunkByPartition(recs) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			for i := range chunk.records {
				if err := s.upsertInTxn(txn, chunk.records[i]); err != nil {
					return err
				}
			}
			return nil
		})

		cr := ChunkResult{
			Partition: chunk.partition,
			Index:     chunk.index,
			Count:     len(chunk.records),
		}
		if err != nil {
			cr.Err = vwerrors.StoreWriteError{Partition: chunk.partition, Chunk: chunk.index, Err: err}
			s.logger.Error("batch chunk write failed: %v", cr.Err)
		} else {
			result.Written += cr.Count
		}
		result.Chunks = append(result.Chunks, cr)
	}

	return result, result.Err()
}

// Get fetches one record by partition and composite key.
func (s *BadgerStore) Get(ctx context.Context, vaultName, objectName string, typ ObjectType) (*KeyVaultObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := recordKey(vaultName, objectName+"_"+string(typ))
	var rec KeyVaultObject

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// scan walks every record under the given partition prefix ("" for all) and
// calls fn for each. Iteration is in key order, so results are stable across
// identical stores.
func (s *BadgerStore) scan(ctx context.Context, vaultName string, fn func(*KeyVaultObject) error) error {
	prefix := []byte(keyPrefix)
	if vaultName != "" {
		prefix = recordKey(vaultName, "")
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if !bytes.HasPrefix(item.Key(), prefix) {
				break
			}
			var rec KeyVaultObject
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode record %s: %w", item.Key(), err)
			}
			if err := fn(&rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query evaluates the filter over the store and returns the requested page.
func (s *BadgerStore) Query(ctx context.Context, f Filter, page, pageSize int) (*QueryResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	match := f.Predicate(s.now().UTC())

	var matches []KeyVaultObject
	err := s.scan(ctx, f.VaultName, func(rec *KeyVaultObject) error {
		if match(rec) {
			matches = append(matches, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := len(matches)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &QueryResult{
		Items:      matches[start:end],
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		HasNext:    end < total,
	}, nil
}

// KPISummary aggregates counts over a full scan.
func (s *BadgerStore) KPISummary(ctx context.Context) (*KPISummary, error) {
	now := s.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var summary KPISummary
	err := s.scan(ctx, "", func(rec *KeyVaultObject) error {
		switch rec.ObjectType {
		case ObjectTypeSecret:
			summary.TotalSecrets++
		case ObjectTypeCertificate:
			summary.TotalCertificates++
		}

		if rec.DaysRemaining != nil {
			// The 30-day bucket is a subset of the 60-day bucket; a record
			// at 20 days remaining increments both.
			if *rec.DaysRemaining <= 30 {
				summary.Expiring30Days++
			}
			if *rec.DaysRemaining <= 60 {
				summary.Expiring60Days++
			}
		}

		if rec.LastAlertSent != nil && !rec.LastAlertSent.Before(todayStart) {
			summary.AlertsSentToday++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// AlertHistory lists alerted records from the last days. When recipient is
// set, a record matches if either its distribution email or its owner equals
// the recipient.
func (s *BadgerStore) AlertHistory(ctx context.Context, days int, recipient string) ([]AlertHistoryEntry, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	var entries []AlertHistoryEntry
	err := s.scan(ctx, "", func(rec *KeyVaultObject) error {
		if rec.LastAlertSent == nil || rec.LastAlertSent.Before(cutoff) {
			return nil
		}
		if recipient != "" && rec.DistributionEmail != recipient && rec.Owner != recipient {
			return nil
		}
		entries = append(entries, AlertHistoryEntry{
			ObjectName:            rec.ObjectName,
			ObjectType:            rec.ObjectType,
			VaultName:             rec.VaultName,
			Recipient:             rec.Recipient(),
			AlertSentAt:           *rec.LastAlertSent,
			DaysRemainingWhenSent: rec.DaysRemaining,
			ExpirationDate:        rec.ExpirationDate,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AlertSentAt.After(entries[j].AlertSentAt)
	})
	return entries, nil
}

// MarkAlerted records an alert dispatch time for one record, leaving every
// other field untouched.
func (s *BadgerStore) MarkAlerted(ctx context.Context, vaultName, objectName string, typ ObjectType, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := recordKey(vaultName, objectName+"_"+string(typ))

	var err error
	for attempt := 0; attempt < upsertRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			} else if err != nil {
				return err
			}

			var rec KeyVaultObject
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}

			sent := at.UTC()
			rec.LastAlertSent = &sent
			rec.UpdatedAt = s.now().UTC()

			data, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
		if err != badger.ErrConflict {
			break
		}
	}
	if err == ErrNotFound {
		return err
	}
	if err != nil {
		return vwerrors.StoreWriteError{Partition: vaultName, Err: err}
	}
	return nil
}

// badgerLogAdapter routes badger's internal logging through our logger.
type badgerLogAdapter struct {
	logger *logging.Logger
}

func (a *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(format, args...)
}

func (a *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(format, args...)
}

func (a *badgerLogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(format, args...)
}

func (a *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(format, args...)
}
