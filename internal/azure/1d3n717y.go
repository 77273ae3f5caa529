// Package azure provides the managed identity and the Key Vault and Blob Storage clients authenticated with it.
package azure

import (
	"context"
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/ccamel/managedfn/internal/util"
	"github.com/ccamel/managedfn/pkg/managedfn"
)

// Identity authenticates the clients with a token credential.
type Identity struct {
	credential azcore.TokenCredential
	transport  policy.Transporter
}

// NewTransport returns the HTTP client used by the Azure pipelines, logging each exchange.
func NewTransport() *http.Client {
	return util.NewLoggingClient(nil, 0)
}

// NewDefaultIdentity acquires the ambient identity through the default credential chain (environment, workload
// identity, managed identity, developer tools).
func NewDefaultIdentity(transport policy.Transporter) (*Identity, error) {
	credential, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		ClientOptions: azcore.ClientOptions{Transport: transport},
	})
	if err != nil {
		return nil, err
	}

	return NewIdentity(credential, transport), nil
}

// NewIdentity returns an identity relying on the given credential. A nil transport uses the SDK default.
func NewIdentity(credential azcore.TokenCredential, transport policy.Transporter) *Identity {
	return &Identity{
		credential: credential,
		transport:  transport,
	}
}

// IdentityFactory returns a factory acquiring the default identity on each invocation.
func IdentityFactory(transport policy.Transporter) managedfn.IdentityFactory {
	return func(ctx context.Context) (managedfn.Identity, error) {
		return NewDefaultIdentity(transport)
	}
}

func (i *Identity) clientOptions() azcore.ClientOptions {
	return azcore.ClientOptions{Transport: i.transport}
}

// SecretStore returns a client of the given vault.
func (i *Identity) SecretStore(vaultURL string) (managedfn.SecretStore, error) {
	client, err := azsecrets.NewClient(vaultURL, i.credential, &azsecrets.ClientOptions{
		ClientOptions: i.clientOptions(),
	})
	if err != nil {
		return nil, err
	}

	return &SecretStore{client: client}, nil
}

// BlobStore returns a client of the given storage account.
func (i *Identity) BlobStore(accountURL string) (managedfn.BlobStore, error) {
	client, err := azblob.NewClient(accountURL, i.credential, &azblob.ClientOptions{
		ClientOptions: i.clientOptions(),
	})
	if err != nil {
		return nil, err
	}

	return &BlobStore{client: client}, nil
}

// SecretStore reads the secrets of a Key Vault.
type SecretStore struct {
	client *azsecrets.Client
}

// GetSecret returns the latest version of the named secret.
func (s *SecretStore) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", describe(err)
	}

	if resp.Value == nil {
		return "", nil
	}

	return *resp.Value, nil
}

// BlobStore lists the containers of a storage account.
type BlobStore struct {
	client *azblob.Client
}

// ListContainers walks through all the pages of the listing.
func (s *BlobStore) ListContainers(ctx context.Context) ([]string, error) {
	var names []string

	pager := s.client.NewListContainersPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, describe(err)
		}

		for _, item := range page.ContainerItems {
			if item != nil && item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}

	return names, nil
}

// describe shortens the errors returned by the services to their status and error code, the full response being
// already logged by the transport.
func describe(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.ErrorCode != "" {
		return &ServiceError{StatusCode: respErr.StatusCode, Code: respErr.ErrorCode, err: err}
	}

	return err
}
