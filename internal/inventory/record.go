// Package inventory holds the partitioned keyed store of mirrored Key Vault
// object metadata and alert state. Records are partitioned by vault name and
// keyed by object name plus object type.
package inventory

import (
	"time"
)

// ObjectType distinguishes secrets from certificates.
type ObjectType string

const (
	ObjectTypeSecret      ObjectType = "Secret"
	ObjectTypeCertificate ObjectType = "Certificate"
)

// KeyVaultObject is one mirrored vault object. Optional fields are pointers
// (timestamps, derived counters) or empty strings.
type KeyVaultObject struct {
	VaultName         string     `json:"vault_name"`
	ObjectName        string     `json:"object_name"`
	ObjectType        ObjectType `json:"object_type"`
	SubscriptionID    string     `json:"subscription_id,omitempty"`
	ExpirationDate    *time.Time `json:"expiration_date,omitempty"`
	DaysRemaining     *int       `json:"days_remaining,omitempty"`
	Owner             string     `json:"owner,omitempty"`
	DistributionEmail string     `json:"distribution_email,omitempty"`
	Issuer            string     `json:"issuer,omitempty"`
	Thumbprint        string     `json:"thumbprint,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// LastAlertSent is mutated only through Store.MarkAlerted. Sync upserts
	// preserve whatever value is already stored.
	LastAlertSent *time.Time `json:"last_alert_sent,omitempty"`
}

// Key returns the composite row key, unique within a partition.
func (o *KeyVaultObject) Key() string {
	return o.ObjectName + "_" + string(o.ObjectType)
}

// Recipient resolves the notification target: distribution email if set,
// otherwise the owner. Empty means the record has no resolvable recipient.
func (o *KeyVaultObject) Recipient() string {
	if o.DistributionEmail != "" {
		return o.DistributionEmail
	}
	return o.Owner
}

// merge applies an incoming sync record on top of the stored one. Derived
// expiration fields always take the incoming value; optional descriptive
// fields overwrite only when the incoming record carries them; created_at is
// set once and last_alert_sent is never touched by sync.
func merge(existing, incoming *KeyVaultObject, now time.Time) KeyVaultObject {
	out := *existing

	out.ExpirationDate = incoming.ExpirationDate
	out.DaysRemaining = incoming.DaysRemaining

	if incoming.SubscriptionID != "" {
		out.SubscriptionID = incoming.SubscriptionID
	}
	if incoming.Owner != "" {
		out.Owner = incoming.Owner
	}
	if incoming.DistributionEmail != "" {
		out.DistributionEmail = incoming.DistributionEmail
	}
	if incoming.Issuer != "" {
		out.Issuer = incoming.Issuer
	}
	if incoming.Thumbprint != "" {
		out.Thumbprint = incoming.Thumbprint
	}

	out.UpdatedAt = now
	return out
}
