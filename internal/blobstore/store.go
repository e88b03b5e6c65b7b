// Package blobstore keeps profile photos in an Azure Blob Storage container.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/logging"
	"github.com/systmms/userprofile/internal/metrics"
)

// DefaultContentType is stored and served when none is known.
const DefaultContentType = "application/octet-stream"

// BlobAPI is the subset of azblob.Client the store uses.
type BlobAPI interface {
	URL() string
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	DeleteBlob(ctx context.Context, containerName, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
	NewListBlobsFlatPager(containerName string, o *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse]
}

// Signer turns SAS values into signed query parameters.
type Signer func(ctx context.Context, values sas.BlobSignatureValues) (sas.QueryParameters, error)

// Download is an open blob body. Body is a single-pass stream; the caller
// must close it.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// ReadURL is a time-limited, read-only blob URL.
type ReadURL struct {
	URL       string    `json:"url"`
	StartsAt  time.Time `json:"starts_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether t falls inside the URL's validity window.
func (u *ReadURL) ValidAt(t time.Time) bool {
	return !t.Before(u.StartsAt) && t.Before(u.ExpiresAt)
}

// Store reads and writes blobs in one container.
type Store struct {
	api       BlobAPI
	container string
	signer    Signer
	now       func() time.Time
	logger    *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now when computing SAS windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSigner sets how temporary URLs are signed.
func WithSigner(signer Signer) Option {
	return func(s *Store) {
		s.signer = signer
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a store over api scoped to containerName.
func New(api BlobAPI, containerName string, opts ...Option) *Store {
	s := &Store{
		api:       api,
		container: containerName,
		now:       time.Now,
		logger:    logging.New(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Container returns the configured container name.
func (s *Store) Container() string {
	return s.container
}

// BlobURL returns the unsigned URL of a blob in the configured container.
func (s *Store) BlobURL(name string) string {
	return s.urlFor(s.container, name)
}

func (s *Store) urlFor(containerName, name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(s.api.URL(), "/") + "/" + url.PathEscape(containerName) + "/" + strings.Join(segments, "/")
}

// EnsureContainer creates the container if it is missing.
func (s *Store) EnsureContainer(ctx context.Context) error {
	start := time.Now()
	_, err := s.api.CreateContainer(ctx, s.container, nil)
	if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		err = nil
	}
	metrics.ObserveDependency("blob", "create_container", start, err)
	if err != nil {
		return dserrors.Dependency("blob", "create container", err)
	}
	return nil
}

// Upload writes data to name, overwriting any existing blob.
func (s *Store) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = DefaultContentType
	}

	start := time.Now()
	_, err := s.api.UploadBuffer(ctx, s.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	metrics.ObserveDependency("blob", "upload", start, err)
	if err != nil {
		return dserrors.Dependency("blob", fmt.Sprintf("upload %s", name), err)
	}

	s.logger.Debug("Uploaded blob %s (%d bytes, %s)", name, len(data), contentType)
	return nil
}

// Download opens name for reading. A missing blob is a NotFoundError.
func (s *Store) Download(ctx context.Context, name string) (*Download, error) {
	start := time.Now()
	resp, err := s.api.DownloadStream(ctx, s.container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		metrics.ObserveDependency("blob", "download", start, nil)
		return nil, dserrors.NotFoundError{Resource: "photo", ID: name}
	}
	metrics.ObserveDependency("blob", "download", start, err)
	if err != nil {
		return nil, dserrors.Dependency("blob", fmt.Sprintf("download %s", name), err)
	}

	d := &Download{
		Body:          resp.Body,
		ContentType:   DefaultContentType,
		ContentLength: -1,
	}
	if resp.ContentType != nil && *resp.ContentType != "" {
		d.ContentType = *resp.ContentType
	}
	if resp.ContentLength != nil {
		d.ContentLength = *resp.ContentLength
	}
	return d, nil
}

// Delete removes name. Deleting a missing blob succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	start := time.Now()
	_, err := s.api.DeleteBlob(ctx, s.container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		err = nil
	}
	metrics.ObserveDependency("blob", "delete", start, err)
	if err != nil {
		return dserrors.Dependency("blob", fmt.Sprintf("delete %s", name), err)
	}
	return nil
}

// ListBlobNames returns the names under prefix, skipping directory markers.
func (s *Store) ListBlobNames(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	pager := s.api.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})

	names := []string{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			metrics.ObserveDependency("blob", "list", start, err)
			return nil, dserrors.Dependency("blob", fmt.Sprintf("list %s", prefix), err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil || *item.Name == "" || strings.HasSuffix(*item.Name, "/") {
				continue
			}
			names = append(names, *item.Name)
		}
	}

	metrics.ObserveDependency("blob", "list", start, nil)
	return names, nil
}

// GenerateTemporaryReadURL returns a read-only URL for a blob, valid from one
// minute ago until expiryMinutes from now. An empty containerName means the
// configured container.
func (s *Store) GenerateTemporaryReadURL(ctx context.Context, containerName, name string, expiryMinutes int) (*ReadURL, error) {
	if containerName == "" {
		containerName = s.container
	}
	if expiryMinutes <= 0 {
		return nil, dserrors.ConfigError{
			Field:   "photo_url_expiry_minutes",
			Value:   expiryMinutes,
			Message: "expiry must be a positive number of minutes",
		}
	}
	if s.signer == nil {
		return nil, dserrors.ConfigError{
			Field:      "storage",
			Message:    "temporary URLs need a user delegation key or an account key",
			Suggestion: "Use AZURE_STORAGE_ACCOUNT_URL with an identity, or a connection string that carries AccountKey",
		}
	}

	now := s.now().UTC()
	startsAt := now.Add(-time.Minute)
	expiresAt := now.Add(time.Duration(expiryMinutes) * time.Minute)

	protocol := sas.ProtocolHTTPS
	if strings.HasPrefix(s.api.URL(), "http://") {
		protocol = sas.ProtocolHTTPSandHTTP
	}

	values := sas.BlobSignatureValues{
		Protocol:      protocol,
		StartTime:     startsAt,
		ExpiryTime:    expiresAt,
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: containerName,
		BlobName:      name,
	}

	start := time.Now()
	params, err := s.signer(ctx, values)
	metrics.ObserveDependency("blob", "sign_url", start, err)
	if err != nil {
		return nil, dserrors.Dependency("blob", fmt.Sprintf("sign url for %s", name), err)
	}

	return &ReadURL{
		URL:       s.urlFor(containerName, name) + "?" + params.Encode(),
		StartsAt:  startsAt,
		ExpiresAt: expiresAt,
	}, nil
}
