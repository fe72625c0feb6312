package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func intPtr(v int) *int {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func testRecord(vault, name string, typ ObjectType) KeyVaultObject {
	return KeyVaultObject{
		VaultName:  vault,
		ObjectName: name,
		ObjectType: typ,
	}
}

func TestBadgerStore_UpsertAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	exp := time.Now().UTC().Add(45 * 24 * time.Hour)
	rec := testRecord("vault-a", "api-key", ObjectTypeSecret)
	rec.SubscriptionID = "sub-1"
	rec.ExpirationDate = &exp
	rec.DaysRemaining = intPtr(45)
	rec.Owner = "alice@x.com"

	require.NoError(t, store.Upsert(ctx, rec))

	got, err := store.Get(ctx, "vault-a", "api-key", ObjectTypeSecret)
	require.NoError(t, err)
	assert.Equal(t, "vault-a", got.VaultName)
	assert.Equal(t, "api-key", got.ObjectName)
	assert.Equal(t, "sub-1", got.SubscriptionID)
	assert.Equal(t, 45, *got.DaysRemaining)
	assert.Equal(t, "alice@x.com", got.Owner)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
	assert.Nil(t, got.LastAlertSent)
}

func TestBadgerStore_Get_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Get(context.Background(), "vault-a", "missing", ObjectTypeSecret)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_UpsertMerge(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := testRecord("vault-a", "api-key", ObjectTypeSecret)
	first.Owner = "alice@x.com"
	first.DaysRemaining = intPtr(45)
	require.NoError(t, store.Upsert(ctx, first))

	created, err := store.Get(ctx, "vault-a", "api-key", ObjectTypeSecret)
	require.NoError(t, err)

	// Alert state written between syncs must survive the next upsert.
	alertedAt := time.Now().UTC().Add(-1 * time.Hour)
	require.NoError(t, store.MarkAlerted(ctx, "vault-a", "api-key", ObjectTypeSecret, alertedAt))

	second := testRecord("vault-a", "api-key", ObjectTypeSecret)
	second.DaysRemaining = intPtr(44) // recomputed derived field
	require.NoError(t, store.Upsert(ctx, second))

	got, err := store.Get(ctx, "vault-a", "api-key", ObjectTypeSecret)
	require.NoError(t, err)

	assert.Equal(t, 44, *got.DaysRemaining, "derived fields take the incoming value")
	assert.Equal(t, "alice@x.com", got.Owner, "unseen fields retain the stored value")
	require.NotNil(t, got.LastAlertSent, "sync must not clobber last_alert_sent")
	assert.WithinDuration(t, alertedAt, *got.LastAlertSent, time.Second)
	assert.Equal(t, created.CreatedAt, got.CreatedAt, "created_at is set once")
	assert.False(t, got.UpdatedAt.Before(created.UpdatedAt), "updated_at never goes backwards")
}

func TestBadgerStore_UpsertClearsExpiration(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	exp := time.Now().UTC().Add(10 * 24 * time.Hour)
	rec := testRecord("vault-a", "rotating", ObjectTypeSecret)
	rec.ExpirationDate = &exp
	rec.DaysRemaining = intPtr(10)
	require.NoError(t, store.Upsert(ctx, rec))

	// The vault object lost its expiration; days_remaining must not be
	// carried forward.
	next := testRecord("vault-a", "rotating", ObjectTypeSecret)
	require.NoError(t, store.Upsert(ctx, next))

	got, err := store.Get(ctx, "vault-a", "rotating", ObjectTypeSecret)
	require.NoError(t, err)
	assert.Nil(t, got.ExpirationDate)
	assert.Nil(t, got.DaysRemaining)
}

func TestBadgerStore_QueryPagination(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	var recs []KeyVaultObject
	for i := 0; i < 120; i++ {
		recs = append(recs, testRecord("vault-a", fmt.Sprintf("secret-%03d", i), ObjectTypeSecret))
	}
	_, err := store.BatchUpsert(ctx, recs)
	require.NoError(t, err)

	cases := []struct {
		page     int
		expected int
		hasNext  bool
	}{
		{page: 1, expected: 50, hasNext: true},
		{page: 2, expected: 50, hasNext: true},
		{page: 3, expected: 20, hasNext: false},
		{page: 4, expected: 0, hasNext: false},
	}

	for _, tc := range cases {
		result, err := store.Query(ctx, Filter{}, tc.page, 50)
		require.NoError(t, err)
		assert.Equal(t, 120, result.TotalCount, "page %d", tc.page)
		assert.Len(t, result.Items, tc.expected, "page %d", tc.page)
		assert.Equal(t, tc.hasNext, result.HasNext, "page %d", tc.page)
	}
}

func TestBadgerStore_QueryFilterConjunction(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	soon := time.Now().UTC().Add(20 * 24 * time.Hour)
	later := time.Now().UTC().Add(120 * 24 * time.Hour)

	a := testRecord("vault-a", "db-password", ObjectTypeSecret)
	a.Owner = "alice@x.com"
	a.ExpirationDate = &soon

	b := testRecord("vault-a", "tls-cert", ObjectTypeCertificate)
	b.Owner = "alice@x.com"
	b.ExpirationDate = &later

	c := testRecord("vault-b", "db-password", ObjectTypeSecret)
	c.Owner = "bob@x.com"
	c.ExpirationDate = &soon

	_, err := store.BatchUpsert(ctx, []KeyVaultObject{a, b, c})
	require.NoError(t, err)

	// Conjunction of owner + expiration window keeps only alice's secret.
	result, err := store.Query(ctx, Filter{
		Owner:             "alice@x.com",
		ExpiresWithinDays: intPtr(30),
	}, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "db-password", result.Items[0].ObjectName)
	assert.Equal(t, "vault-a", result.Items[0].VaultName)

	// Partition filter alone.
	result, err = store.Query(ctx, Filter{VaultName: "vault-b"}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)

	// Substring match is exact, no normalization.
	result, err = store.Query(ctx, Filter{NameContains: "db-"}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)

	result, err = store.Query(ctx, Filter{NameContains: "DB-"}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCount)
}

func TestBadgerStore_BatchUpsertChunks(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	// 150 records in one partition split into chunks of 100 and 50; a second
	// partition gets its own chunk.
	var recs []KeyVaultObject
	for i := 0; i < 150; i++ {
		recs = append(recs, testRecord("vault-a", fmt.Sprintf("secret-%03d", i), ObjectTypeSecret))
	}
	for i := 0; i < 10; i++ {
		recs = append(recs, testRecord("vault-b", fmt.Sprintf("cert-%02d", i), ObjectTypeCertificate))
	}

	result, err := store.BatchUpsert(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 160, result.Written)
	require.Len(t, result.Chunks, 3)

	assert.Equal(t, "vault-a", result.Chunks[0].Partition)
	assert.Equal(t, 100, result.Chunks[0].Count)
	assert.Equal(t, "vault-a", result.Chunks[1].Partition)
	assert.Equal(t, 50, result.Chunks[1].Count)
	assert.Equal(t, "vault-b", result.Chunks[2].Partition)
	assert.Equal(t, 10, result.Chunks[2].Count)
	assert.Empty(t, result.Failed())
}

func TestBadgerStore_BatchUpsertChunkFailureIsolated(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	// Corrupt one stored value so the merge read inside vault-b's chunk
	// transaction fails.
	require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey("vault-b", "bad_Secret"), []byte("not json"))
	}))

	recs := []KeyVaultObject{
		testRecord("vault-a", "good-1", ObjectTypeSecret),
		testRecord("vault-a", "good-2", ObjectTypeSecret),
		testRecord("vault-b", "bad", ObjectTypeSecret),
		testRecord("vault-b", "collateral", ObjectTypeSecret),
	}

	result, err := store.BatchUpsert(ctx, recs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 chunks failed")
	assert.Equal(t, 2, result.Written)
	require.Len(t, result.Failed(), 1)
	assert.Equal(t, "vault-b", result.Failed()[0].Partition)

	// The committed partition persists.
	_, err = store.Get(ctx, "vault-a", "good-1", ObjectTypeSecret)
	require.NoError(t, err)
	_, err = store.Get(ctx, "vault-a", "good-2", ObjectTypeSecret)
	require.NoError(t, err)

	// The failed chunk is atomic: its healthy record was rolled back with it.
	_, err = store.Get(ctx, "vault-b", "collateral", ObjectTypeSecret)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_KPISummary(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	near := testRecord("vault-a", "near", ObjectTypeSecret)
	near.DaysRemaining = intPtr(20)

	mid := testRecord("vault-a", "mid", ObjectTypeSecret)
	mid.DaysRemaining = intPtr(45)

	far := testRecord("vault-a", "far", ObjectTypeCertificate)
	far.DaysRemaining = intPtr(90)

	noExp := testRecord("vault-b", "no-exp", ObjectTypeCertificate)

	_, err := store.BatchUpsert(ctx, []KeyVaultObject{near, mid, far, noExp})
	require.NoError(t, err)

	// One alert today, one yesterday.
	require.NoError(t, store.MarkAlerted(ctx, "vault-a", "near", ObjectTypeSecret, time.Now().UTC()))
	require.NoError(t, store.MarkAlerted(ctx, "vault-a", "mid", ObjectTypeSecret, time.Now().UTC().Add(-48*time.Hour)))

	summary, err := store.KPISummary(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalSecrets)
	assert.Equal(t, 2, summary.TotalCertificates)
	// A record at 20 days remaining increments both expiring buckets.
	assert.Equal(t, 1, summary.Expiring30Days)
	assert.Equal(t, 2, summary.Expiring60Days)
	assert.Equal(t, 1, summary.AlertsSentToday)
}

func TestBadgerStore_AlertHistory(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	a := testRecord("vault-a", "for-alice", ObjectTypeSecret)
	a.Owner = "alice@x.com"

	b := testRecord("vault-a", "for-team", ObjectTypeSecret)
	b.Owner = "bob@x.com"
	b.DistributionEmail = "team@x.com"

	c := testRecord("vault-a", "old-alert", ObjectTypeSecret)
	c.Owner = "alice@x.com"

	d := testRecord("vault-a", "never-alerted", ObjectTypeSecret)
	d.Owner = "alice@x.com"

	_, err := store.BatchUpsert(ctx, []KeyVaultObject{a, b, c, d})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.MarkAlerted(ctx, "vault-a", "for-alice", ObjectTypeSecret, now.Add(-1*time.Hour)))
	require.NoError(t, store.MarkAlerted(ctx, "vault-a", "for-team", ObjectTypeSecret, now.Add(-2*time.Hour)))
	require.NoError(t, store.MarkAlerted(ctx, "vault-a", "old-alert", ObjectTypeSecret, now.AddDate(0, 0, -30)))

	history, err := store.AlertHistory(ctx, 7, "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first.
	assert.Equal(t, "for-alice", history[0].ObjectName)
	assert.Equal(t, "for-team", history[1].ObjectName)
	assert.Equal(t, "team@x.com", history[1].Recipient)

	// Recipient matches either distribution email or owner.
	history, err = store.AlertHistory(ctx, 7, "bob@x.com")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "for-team", history[0].ObjectName)

	history, err = store.AlertHistory(ctx, 90, "alice@x.com")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestBadgerStore_MarkAlerted_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	err := store.MarkAlerted(context.Background(), "vault-a", "missing", ObjectTypeSecret, time.Now())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_UpsertIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	exp := time.Now().UTC().Add(45 * 24 * time.Hour)
	rec := testRecord("vault-a", "api-key", ObjectTypeSecret)
	rec.ExpirationDate = &exp
	rec.DaysRemaining = intPtr(45)
	rec.Owner = "alice@x.com"

	require.NoError(t, store.Upsert(ctx, rec))
	first, err := store.Get(ctx, "vault-a", "api-key", ObjectTypeSecret)
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, rec))
	second, err := store.Get(ctx, "vault-a", "api-key", ObjectTypeSecret)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.Owner, second.Owner)
	assert.Equal(t, *first.DaysRemaining, *second.DaysRemaining)
	assert.True(t, second.ExpirationDate.Equal(*first.ExpirationDate))
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}
