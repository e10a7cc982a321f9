package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// ResultArchive keeps a copy of annotated results outside the session.
type ResultArchive interface {
	// Archive stores the PNG and returns where it can be found
	Archive(ctx context.Context, sessionID string, png []byte) (string, error)
}

type azureArchive struct {
	client     *azblob.Client
	serviceURL string
	container  string
	now        func() time.Time
}

func NewAzureArchive(accountName string, accountKey string, container string) (ResultArchive, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage credentials: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}

	return &azureArchive{client: client, serviceURL: serviceURL, container: container, now: time.Now}, nil
}

// EnsureContainer creates the archive container unless it already exists.
func EnsureContainer(ctx context.Context, archive ResultArchive) error {
	a, ok := archive.(*azureArchive)
	if !ok {
		return nil
	}
	_, err := a.client.CreateContainer(ctx, a.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", a.container, err)
	}
	return nil
}

func (s *azureArchive) Archive(ctx context.Context, sessionID string, png []byte) (string, error) {
	name := blobName(sessionID, s.now())
	contentType := "image/png"

	_, err := s.client.UploadBuffer(ctx, s.container, name, png, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata:    map[string]*string{"session": &sessionID},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	return s.serviceURL + s.container + "/" + name, nil
}

// blobName groups results by UTC day.
func blobName(sessionID string, t time.Time) string {
	t = t.UTC()
	id := strings.NewReplacer("/", "_", "\\", "_").Replace(sessionID)
	if id == "" {
		id = "anonymous"
	}
	return fmt.Sprintf("%s/%s-%d.png", t.Format("2006/01/02"), id, t.UnixNano())
}

type noopArchive struct{}

// NewNoopArchive returns an archive that stores nothing.
func NewNoopArchive() ResultArchive {
	return noopArchive{}
}

func (noopArchive) Archive(context.Context, string, []byte) (string, error) {
	return "", nil
}
