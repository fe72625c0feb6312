package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_IsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{Owner: "alice@x.com"}.IsZero())
	assert.False(t, Filter{ExpiresWithinDays: intPtr(0)}.IsZero())
}

func TestFilter_Predicate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	in20 := now.AddDate(0, 0, 20)
	in90 := now.AddDate(0, 0, 90)

	secret := KeyVaultObject{
		VaultName:      "vault-a",
		ObjectName:     "db-password",
		ObjectType:     ObjectTypeSecret,
		Owner:          "alice@x.com",
		ExpirationDate: &in20,
	}
	cert := KeyVaultObject{
		VaultName:      "vault-b",
		ObjectName:     "tls-cert",
		ObjectType:     ObjectTypeCertificate,
		Owner:          "bob@x.com",
		ExpirationDate: &in90,
	}
	noExpiry := KeyVaultObject{
		VaultName:  "vault-a",
		ObjectName: "static-token",
		ObjectType: ObjectTypeSecret,
		Owner:      "alice@x.com",
	}

	tests := []struct {
		name   string
		filter Filter
		rec    KeyVaultObject
		want   bool
	}{
		{
			name:   "empty filter matches everything",
			filter: Filter{},
			rec:    cert,
			want:   true,
		},
		{
			name:   "window includes near expiration",
			filter: Filter{ExpiresWithinDays: intPtr(30)},
			rec:    secret,
			want:   true,
		},
		{
			name:   "window excludes far expiration",
			filter: Filter{ExpiresWithinDays: intPtr(30)},
			rec:    cert,
			want:   false,
		},
		{
			name:   "window never matches records without expiration",
			filter: Filter{ExpiresWithinDays: intPtr(365)},
			rec:    noExpiry,
			want:   false,
		},
		{
			name:   "owner is exact",
			filter: Filter{Owner: "alice@x.com"},
			rec:    secret,
			want:   true,
		},
		{
			name:   "owner is case sensitive",
			filter: Filter{Owner: "Alice@x.com"},
			rec:    secret,
			want:   false,
		},
		{
			name:   "object type",
			filter: Filter{ObjectType: ObjectTypeCertificate},
			rec:    secret,
			want:   false,
		},
		{
			name:   "name substring",
			filter: Filter{NameContains: "password"},
			rec:    secret,
			want:   true,
		},
		{
			name:   "conjunction requires every clause",
			filter: Filter{Owner: "alice@x.com", VaultName: "vault-b"},
			rec:    secret,
			want:   false,
		},
		{
			name: "full conjunction",
			filter: Filter{
				ExpiresWithinDays: intPtr(30),
				Owner:             "alice@x.com",
				VaultName:         "vault-a",
				ObjectType:        ObjectTypeSecret,
				NameContains:      "db",
			},
			rec:  secret,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			match := tt.filter.Predicate(now)
			rec := tt.rec
			assert.Equal(t, tt.want, match(&rec))
		})
	}
}

func TestChunkByPartition(t *testing.T) {
	t.Parallel()

	var recs []KeyVaultObject
	for i := 0; i < 150; i++ {
		recs = append(recs, KeyVaultObject{VaultName: "vault-a", ObjectName: "s", ObjectType: ObjectTypeSecret})
	}
	recs = append(recs, KeyVaultObject{VaultName: "vault-b", ObjectName: "s", ObjectType: ObjectTypeSecret})

	chunks := chunkByPartition(recs)
	if assert.Len(t, chunks, 3) {
		assert.Equal(t, "vault-a", chunks[0].partition)
		assert.Equal(t, 0, chunks[0].index)
		assert.Len(t, chunks[0].records, 100)

		assert.Equal(t, "vault-a", chunks[1].partition)
		assert.Equal(t, 1, chunks[1].index)
		assert.Len(t, chunks[1].records, 50)

		assert.Equal(t, "vault-b", chunks[2].partition)
		assert.Equal(t, 0, chunks[2].index)
		assert.Len(t, chunks[2].records, 1)
	}

	assert.Empty(t, chunkByPartition(nil))
}

func TestBatchResult_Err(t *testing.T) {
	t.Parallel()

	ok := BatchResult{
		Written: 100,
		Chunks:  []ChunkResult{{Partition: "vault-a", Count: 100}},
	}
	assert.NoError(t, ok.Err())
	assert.Empty(t, ok.Failed())

	partial := BatchResult{
		Written: 100,
		Chunks: []ChunkResult{
			{Partition: "vault-a", Index: 0, Count: 100},
			{Partition: "vault-a", Index: 1, Count: 50, Err: assert.AnError},
		},
	}
	require.Len(t, partial.Failed(), 1)
	err := partial.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 chunks failed")
}

func TestRecipient(t *testing.T) {
	t.Parallel()

	rec := KeyVaultObject{Owner: "alice@x.com"}
	assert.Equal(t, "alice@x.com", rec.Recipient())

	rec.DistributionEmail = "team@x.com"
	assert.Equal(t, "team@x.com", rec.Recipient(), "distribution email takes precedence")

	assert.Equal(t, "", (&KeyVaultObject{}).Recipient())
}
