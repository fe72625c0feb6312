package syncer

import (
	"math"
	"time"

	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/vault"
)

// MapObject converts raw vault object metadata into a canonical inventory
// record: partition = vault name, key = objectName_objectType, with
// days_remaining recomputed from now and owner/distribution email pulled
// from tags.
func MapObject(obj vault.Object, vaultName, subscriptionID string, now time.Time) inventory.KeyVaultObject {
	rec := inventory.KeyVaultObject{
		VaultName:      vaultName,
		ObjectName:     obj.Name,
		ObjectType:     obj.Type,
		SubscriptionID: subscriptionID,
		ExpirationDate: obj.Expires,
		DaysRemaining:  daysRemaining(obj.Expires, now),
		Owner:          tagValue(obj.Tags, "owner", "Owner"),
		DistributionEmail: tagValue(obj.Tags, "distribution_email",
			"DistributionEmail"),
		Issuer:     obj.Issuer,
		Thumbprint: obj.Thumbprint,
		UpdatedAt:  now,
	}

	if obj.Created != nil {
		rec.CreatedAt = *obj.Created
	} else {
		rec.CreatedAt = now
	}

	return rec
}

// daysRemaining returns whole days from now until expiration, rounded down,
// or nil when no expiration is set. Already-expired objects yield negative
// values.
func daysRemaining(expires *time.Time, now time.Time) *int {
	if expires == nil {
		return nil
	}
	days := int(math.Floor(expires.Sub(now).Hours() / 24))
	return &days
}

func tagValue(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := tags[key]; ok && v != "" {
			return v
		}
	}
	return ""
}
