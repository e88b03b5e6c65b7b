package blobstore

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"github.com/systmms/userprofile/internal/config"
	"github.com/systmms/userprofile/internal/connstr"
	dserrors "github.com/systmms/userprofile/internal/errors"
)

// SecretSource resolves named secrets.
type SecretSource interface {
	GetSecretValue(ctx context.Context, name string) (string, error)
}

// CredentialSource supplies the ambient token credential.
type CredentialSource interface {
	Credential() (azcore.TokenCredential, error)
}

// Open builds a store from settings. A storage connection-string secret takes
// precedence; otherwise the account URL is used with the ambient credential.
func Open(ctx context.Context, settings *config.Settings, secrets SecretSource, creds CredentialSource, opts ...Option) (*Store, error) {
	if err := settings.RequireStorage(); err != nil {
		return nil, err
	}

	if name := settings.StorageConnectionSecretName; name != "" {
		raw, err := secrets.GetSecretValue(ctx, name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(raw) == "" {
			return nil, dserrors.SecretEmptyError{Name: name}
		}
		return openFromConnectionString(raw, settings.StorageContainerName, opts...)
	}

	cred, err := creds.Credential()
	if err != nil {
		return nil, err
	}
	client, err := azblob.NewClient(settings.StorageAccountURL, cred, nil)
	if err != nil {
		return nil, dserrors.Dependency("blob", "create client", err)
	}

	opts = append([]Option{WithSigner(DelegationSigner(client.ServiceClient()))}, opts...)
	return New(client, settings.StorageContainerName, opts...), nil
}

func openFromConnectionString(raw, containerName string, opts ...Option) (*Store, error) {
	client, err := azblob.NewClientFromConnectionString(raw, nil)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      "storage_connection_string",
			Message:    "storage connection string is invalid",
			Suggestion: "Use the connection string from the storage account's Access keys page",
		}
	}

	values, err := connstr.Parse(raw)
	if err == nil {
		account, key := values.Get("AccountName"), values.Get("AccountKey")
		if account != "" && key != "" {
			if cred, err := azblob.NewSharedKeyCredential(account, key); err == nil {
				opts = append([]Option{WithSigner(SharedKeySigner(cred))}, opts...)
			}
		}
	}

	return New(client, containerName, opts...), nil
}

// DelegationSigner signs with a user delegation key requested for the SAS
// window. The caller's identity needs a Storage Blob Data role.
func DelegationSigner(svc *service.Client) Signer {
	return func(ctx context.Context, values sas.BlobSignatureValues) (sas.QueryParameters, error) {
		info := service.KeyInfo{
			Start:  to.Ptr(values.StartTime.UTC().Format(sas.TimeFormat)),
			Expiry: to.Ptr(values.ExpiryTime.UTC().Format(sas.TimeFormat)),
		}
		udc, err := svc.GetUserDelegationCredential(ctx, info, nil)
		if err != nil {
			return sas.QueryParameters{}, err
		}
		return values.SignWithUserDelegation(udc)
	}
}

// SharedKeySigner signs with an account key.
func SharedKeySigner(cred *azblob.SharedKeyCredential) Signer {
	return func(_ context.Context, values sas.BlobSignatureValues) (sas.QueryParameters, error) {
		return values.SignWithSharedKey(cred)
	}
}
