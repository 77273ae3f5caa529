package managedfn

import (
	"context"
)

// SecretStore gives a read access to the secrets of a vault.
type SecretStore interface {
	// GetSecret returns the current value of the named secret, the empty string when it has no value.
	GetSecret(ctx context.Context, name string) (string, error)
}

// BlobStore gives a read access to the containers of a storage account.
type BlobStore interface {
	// ListContainers returns the names of all the containers of the account.
	ListContainers(ctx context.Context) ([]string, error)
}

// Identity is an ambient credential, able to provide clients authenticated against the dependencies.
type Identity interface {
	SecretStore(vaultURL string) (SecretStore, error)
	BlobStore(accountURL string) (BlobStore, error)
}

// IdentityFactory denotes functions able to acquire the ambient identity.
type IdentityFactory func(ctx context.Context) (Identity, error)
