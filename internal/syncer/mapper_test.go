package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/vault"
)

func TestMapObject(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	expires := now.AddDate(0, 0, 45)
	created := now.AddDate(0, -6, 0)

	obj := vault.Object{
		Name:    "api-key",
		Type:    inventory.ObjectTypeSecret,
		Expires: &expires,
		Created: &created,
		Tags: map[string]string{
			"owner":              "alice@x.com",
			"distribution_email": "team@x.com",
		},
	}

	rec := MapObject(obj, "vault-a", "sub-1", now)

	assert.Equal(t, "vault-a", rec.VaultName)
	assert.Equal(t, "api-key", rec.ObjectName)
	assert.Equal(t, inventory.ObjectTypeSecret, rec.ObjectType)
	assert.Equal(t, "sub-1", rec.SubscriptionID)
	assert.Equal(t, "api-key_Secret", rec.Key())
	assert.Equal(t, "alice@x.com", rec.Owner)
	assert.Equal(t, "team@x.com", rec.DistributionEmail)
	require.NotNil(t, rec.DaysRemaining)
	assert.Equal(t, 45, *rec.DaysRemaining)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, now, rec.UpdatedAt)
}

func TestMapObject_Certificate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	obj := vault.Object{
		Name:       "tls-cert",
		Type:       inventory.ObjectTypeCertificate,
		Issuer:     "DigiCert",
		Thumbprint: "AB12",
	}

	rec := MapObject(obj, "vault-a", "sub-1", now)

	assert.Equal(t, "tls-cert_Certificate", rec.Key())
	assert.Equal(t, "DigiCert", rec.Issuer)
	assert.Equal(t, "AB12", rec.Thumbprint)
	assert.Nil(t, rec.ExpirationDate)
	assert.Nil(t, rec.DaysRemaining)
	assert.Equal(t, now, rec.CreatedAt, "missing created timestamp falls back to now")
}

func TestMapObject_TagCasing(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	rec := MapObject(vault.Object{
		Name: "s",
		Type: inventory.ObjectTypeSecret,
		Tags: map[string]string{"Owner": "bob@x.com", "DistributionEmail": "ops@x.com"},
	}, "vault-a", "sub-1", now)

	assert.Equal(t, "bob@x.com", rec.Owner)
	assert.Equal(t, "ops@x.com", rec.DistributionEmail)

	// Lowercase wins when both forms are present.
	rec = MapObject(vault.Object{
		Name: "s",
		Type: inventory.ObjectTypeSecret,
		Tags: map[string]string{"owner": "alice@x.com", "Owner": "bob@x.com"},
	}, "vault-a", "sub-1", now)

	assert.Equal(t, "alice@x.com", rec.Owner)
}

func TestDaysRemaining(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires *time.Time
		want    *int
	}{
		{name: "no expiration", expires: nil, want: nil},
		{name: "whole days", expires: timeRef(now.AddDate(0, 0, 45)), want: intRef(45)},
		{name: "partial day rounds down", expires: timeRef(now.Add(36 * time.Hour)), want: intRef(1)},
		{name: "under a day", expires: timeRef(now.Add(6 * time.Hour)), want: intRef(0)},
		{name: "expired", expires: timeRef(now.Add(-30 * time.Hour)), want: intRef(-2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := daysRemaining(tt.expires, now)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func timeRef(v time.Time) *time.Time {
	return &v
}

func intRef(v int) *int {
	return &v
}
