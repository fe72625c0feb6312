package vault

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azcertificates"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	vwerrors "github.com/vaultwatch/vaultwatch/internal/errors"
	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/logging"
)

// Validate that AzureClient implements the Client interface
var _ Client = (*AzureClient)(nil)

// AzureClient implements Client against Azure: control-plane listing via ARM
// and data-plane metadata via the Key Vault SDKs. Data-plane clients are
// created per vault URI on demand.
type AzureClient struct {
	cred   azcore.TokenCredential
	logger *logging.Logger
}

// NewAzureClient creates an Azure-backed vault client.
func NewAzureClient(cred azcore.TokenCredential, logger *logging.Logger) *AzureClient {
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &AzureClient{
		cred:   cred,
		logger: logger.WithComponent("vault"),
	}
}

// ListSubscriptions lists all subscriptions visible to the credential.
func (c *AzureClient) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	client, err := armsubscriptions.NewClient(c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}

	var subs []Subscription
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, c.wrapAccessError("subscription", "list", err)
		}
		for _, sub := range page.Value {
			if sub == nil || sub.SubscriptionID == nil {
				continue
			}
			s := Subscription{ID: *sub.SubscriptionID}
			if sub.DisplayName != nil {
				s.DisplayName = *sub.DisplayName
			}
			if sub.State != nil {
				s.State = string(*sub.State)
			}
			subs = append(subs, s)
		}
	}

	c.logger.Debug("listed %d subscriptions", len(subs))
	return subs, nil
}

// ListVaults lists all key vaults in one subscription.
func (c *AzureClient) ListVaults(ctx context.Context, subscriptionID string) ([]Vault, error) {
	client, err := armkeyvault.NewVaultsClient(subscriptionID, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vaults client: %w", err)
	}

	var vaults []Vault
	pager := client.NewListBySubscriptionPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, c.wrapAccessError("subscription", subscriptionID, err)
		}
		for _, v := range page.Value {
			if v == nil || v.Name == nil {
				continue
			}
			vault := Vault{
				Name:           *v.Name,
				SubscriptionID: subscriptionID,
			}
			if v.Properties != nil && v.Properties.VaultURI != nil {
				vault.URI = *v.Properties.VaultURI
			}
			if v.Location != nil {
				vault.Location = *v.Location
			}
			if v.ID != nil {
				vault.ResourceGroup = resourceGroupFromID(*v.ID)
			}
			vaults = append(vaults, vault)
		}
	}

	c.logger.Debug("listed %d vaults in subscription %s", len(vaults), subscriptionID)
	return vaults, nil
}

// GetSecrets lists secret metadata from one vault. Values are never fetched.
func (c *AzureClient) GetSecrets(ctx context.Context, vaultURI string) ([]Object, error) {
	client, err := azsecrets.NewClient(vaultURI, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets client: %w", err)
	}

	var objects []Object
	pager := client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, c.wrapAccessError("vault", vaultURI, err)
		}
		for _, props := range page.Value {
			if props == nil || props.ID == nil {
				continue
			}
			obj := Object{
				Name: props.ID.Name(),
				Type: inventory.ObjectTypeSecret,
				Tags: derefTags(props.Tags),
			}
			if props.Attributes != nil {
				obj.Expires = props.Attributes.Expires
				obj.Created = props.Attributes.Created
				obj.Updated = props.Attributes.Updated
				obj.Enabled = props.Attributes.Enabled
			}
			objects = append(objects, obj)
		}
	}

	return objects, nil
}

// GetCertificates lists certificate metadata from one vault. The issuer
// comes from the certificate policy, fetched per certificate; a policy fetch
// failure leaves the issuer empty rather than failing the vault.
func (c *AzureClient) GetCertificates(ctx context.Context, vaultURI string) ([]Object, error) {
	client, err := azcertificates.NewClient(vaultURI, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificates client: %w", err)
	}

	var objects []Object
	pager := client.NewListCertificatePropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, c.wrapAccessError("vault", vaultURI, err)
		}
		for _, props := range page.Value {
			if props == nil || props.ID == nil {
				continue
			}
			obj := Object{
				Name:       props.ID.Name(),
				Type:       inventory.ObjectTypeCertificate,
				Tags:       derefTags(props.Tags),
				Thumbprint: hex.EncodeToString(props.X509Thumbprint),
			}
			if props.Attributes != nil {
				obj.Expires = props.Attributes.Expires
				obj.Created = props.Attributes.Created
				obj.Updated = props.Attributes.Updated
				obj.Enabled = props.Attributes.Enabled
			}

			policy, err := client.GetCertificatePolicy(ctx, obj.Name, nil)
			if err != nil {
				c.logger.Warn("failed to fetch policy for certificate %s: %v", obj.Name, err)
			} else if policy.IssuerParameters != nil && policy.IssuerParameters.Name != nil {
				obj.Issuer = *policy.IssuerParameters.Name
			}

			objects = append(objects, obj)
		}
	}

	return objects, nil
}

func (c *AzureClient) wrapAccessError(scope, target string, err error) error {
	c.logger.Error("%s %s: %v (%s)", scope, target, err, vwerrors.AzureSuggestion(err))
	return vwerrors.VaultAccessError{Scope: scope, Target: target, Err: err}
}

// resourceGroupFromID extracts the resource group segment from an ARM
// resource ID (/subscriptions/<id>/resourceGroups/<rg>/...).
func resourceGroupFromID(id string) string {
	parts := strings.Split(id, "/")
	for i := 0; i < len(parts)-1; i++ {
		if strings.EqualFold(parts[i], "resourceGroups") {
			return parts[i+1]
		}
	}
	return ""
}

func derefTags(tags map[string]*string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}
