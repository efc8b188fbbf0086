package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// AzureBackend offloads bodies to an Azure Blob Storage container, the
// same NewSharedKeyCredential + per-blob client construction the pack's
// media upload path uses for Azure Blob Storage.
type AzureBackend struct {
	cred      *azblob.SharedKeyCredential
	accountURL string
	container  string
}

func NewAzureBackend(accountName, accountKey, container string) (*AzureBackend, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("archive: azure credential: %w", err)
	}
	return &AzureBackend{
		cred:       cred,
		accountURL: fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		container:  container,
	}, nil
}

func (b *AzureBackend) blobClient(key string) (*blockblob.Client, error) {
	url := b.accountURL + b.container + "/" + key
	return blockblob.NewClientWithSharedKeyCredential(url, b.cred, nil)
}

func (b *AzureBackend) Put(ctx context.Context, key string, content []byte) error {
	client, err := b.blobClient(key)
	if err != nil {
		return err
	}
	_, err = client.UploadStream(ctx, bytes.NewReader(content), nil)
	return err
}

func (b *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := b.blobClient(key)
	if err != nil {
		return nil, err
	}
	resp, err := client.DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
