package vault

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// CredentialConfig holds Azure authentication settings.
type CredentialConfig struct {
	TenantID           string
	ClientID           string
	ClientSecret       string
	UseManagedIdentity bool
	UserAssignedID     string // For user-assigned managed identity
}

// NewCredential creates an Azure credential from the configured
// authentication method: managed identity, service principal with client
// secret, or the default credential chain (env, CLI, and friends).
func NewCredential(config CredentialConfig) (azcore.TokenCredential, error) {
	var cred azcore.TokenCredential
	var err error

	if config.UseManagedIdentity {
		if config.UserAssignedID != "" {
			opts := azidentity.ManagedIdentityCredentialOptions{
				ID: azidentity.ClientID(config.UserAssignedID),
			}
			cred, err = azidentity.NewManagedIdentityCredential(&opts)
		} else {
			cred, err = azidentity.NewManagedIdentityCredential(nil)
		}
	} else if config.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}
