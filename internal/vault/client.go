// Package vault lists subscriptions, vaults, and object metadata from
// external Key Vaults. The core pipelines consume the Client interface only;
// the Azure implementation lives alongside it and test fakes implement the
// same contract.
package vault

import (
	"context"
	"time"

	"github.com/vaultwatch/vaultwatch/internal/inventory"
)

// Subscription is one cloud subscription visible to the credential.
type Subscription struct {
	ID          string `json:"subscription_id"`
	DisplayName string `json:"display_name"`
	State       string `json:"state,omitempty"`
}

// Vault is one key vault within a subscription.
type Vault struct {
	Name           string `json:"name"`
	URI            string `json:"vault_uri"`
	ResourceGroup  string `json:"resource_group,omitempty"`
	Location       string `json:"location,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// Object is raw metadata for one secret or certificate as listed from a
// vault, before mapping into an inventory record.
type Object struct {
	Name       string
	Type       inventory.ObjectType
	Expires    *time.Time
	Created    *time.Time
	Updated    *time.Time
	Enabled    *bool
	Tags       map[string]string
	Issuer     string
	Thumbprint string
}

// Client is the vault collaborator contract consumed by the sync pipeline.
type Client interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	ListVaults(ctx context.Context, subscriptionID string) ([]Vault, error)
	GetSecrets(ctx context.Context, vaultURI string) ([]Object, error)
	GetCertificates(ctx context.Context, vaultURI string) ([]Object, error)
}
