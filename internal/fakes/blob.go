package fakes

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// StoredBlob is one object held by the fake blob service.
type StoredBlob struct {
	Data        []byte
	ContentType string
}

// BlobService is an in-memory blob service keyed by container and blob name.
// Listing pages hold PageSize items so pager handling is exercised.
type BlobService struct {
	// ServiceURL is returned from URL.
	ServiceURL string
	// PageSize bounds each listing page. Zero means 2.
	PageSize int
	// UploadErr and DeleteErr force failures on every call when set.
	UploadErr error
	DeleteErr error

	mu      sync.Mutex
	blobs   map[string]map[string]StoredBlob
	deletes []string
}

// NewBlobService returns an empty service rooted at the Azurite dev account.
func NewBlobService() *BlobService {
	return &BlobService{
		ServiceURL: "http://127.0.0.1:10000/devstoreaccount1/",
		blobs:      make(map[string]map[string]StoredBlob),
	}
}

// Put stores a blob directly, bypassing UploadBuffer.
func (f *BlobService) Put(containerName, blobName string, data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(containerName, blobName, data, contentType)
}

func (f *BlobService) put(containerName, blobName string, data []byte, contentType string) {
	c, ok := f.blobs[containerName]
	if !ok {
		c = make(map[string]StoredBlob)
		f.blobs[containerName] = c
	}
	c[blobName] = StoredBlob{Data: append([]byte(nil), data...), ContentType: contentType}
}

// Get returns a stored blob.
func (f *BlobService) Get(containerName, blobName string) (StoredBlob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[containerName][blobName]
	return b, ok
}

// Count returns the number of blobs in a container.
func (f *BlobService) Count(containerName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs[containerName])
}

// Containers returns the names of existing containers, sorted.
func (f *BlobService) Containers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.blobs))
	for name := range f.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deletes returns the names passed to DeleteBlob, in order.
func (f *BlobService) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

// URL returns the service endpoint.
func (f *BlobService) URL() string {
	return f.ServiceURL
}

// UploadBuffer stores the buffer, overwriting any existing blob.
func (f *BlobService) UploadBuffer(_ context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UploadErr != nil {
		return azblob.UploadBufferResponse{}, f.UploadErr
	}

	contentType := ""
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		contentType = *o.HTTPHeaders.BlobContentType
	}
	f.put(containerName, blobName, buffer, contentType)
	return azblob.UploadBufferResponse{}, nil
}

// DownloadStream returns the blob body, or a BlobNotFound response error.
func (f *BlobService) DownloadStream(_ context.Context, containerName, blobName string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.blobs[containerName][blobName]
	if !ok {
		return azblob.DownloadStreamResponse{}, notFound(bloberror.BlobNotFound)
	}

	resp := azblob.DownloadStreamResponse{}
	resp.DownloadResponse = blob.DownloadResponse{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), b.Data...))),
		ContentLength: to.Ptr(int64(len(b.Data))),
	}
	if b.ContentType != "" {
		resp.ContentType = to.Ptr(b.ContentType)
	}
	return resp, nil
}

// DeleteBlob removes the blob, or returns a BlobNotFound response error.
func (f *BlobService) DeleteBlob(_ context.Context, containerName, blobName string, _ *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, blobName)
	if f.DeleteErr != nil {
		return azblob.DeleteBlobResponse{}, f.DeleteErr
	}
	if _, ok := f.blobs[containerName][blobName]; !ok {
		return azblob.DeleteBlobResponse{}, notFound(bloberror.BlobNotFound)
	}
	delete(f.blobs[containerName], blobName)
	return azblob.DeleteBlobResponse{}, nil
}

// NewListBlobsFlatPager pages through a snapshot of names under the prefix,
// sorted by name.
func (f *BlobService) NewListBlobsFlatPager(containerName string, o *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse] {
	prefix := ""
	if o != nil && o.Prefix != nil {
		prefix = *o.Prefix
	}

	f.mu.Lock()
	var names []string
	for name := range f.blobs[containerName] {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	f.mu.Unlock()
	sort.Strings(names)

	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 2
	}

	offset := 0
	return runtime.NewPager(runtime.PagingHandler[azblob.ListBlobsFlatResponse]{
		More: func(page azblob.ListBlobsFlatResponse) bool {
			return page.NextMarker != nil && *page.NextMarker != ""
		},
		Fetcher: func(_ context.Context, _ *azblob.ListBlobsFlatResponse) (azblob.ListBlobsFlatResponse, error) {
			end := offset + pageSize
			if end > len(names) {
				end = len(names)
			}
			items := make([]*container.BlobItem, 0, end-offset)
			for _, name := range names[offset:end] {
				items = append(items, &container.BlobItem{Name: to.Ptr(name)})
			}
			offset = end

			var page azblob.ListBlobsFlatResponse
			page.Segment = &container.BlobFlatListSegment{BlobItems: items}
			if offset < len(names) {
				page.NextMarker = to.Ptr(names[offset])
			}
			return page, nil
		},
	})
}

func notFound(code bloberror.Code) error {
	return &azcore.ResponseError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  string(code),
	}
}

// CreateContainer creates an empty container, or returns ContainerAlreadyExists.
func (f *BlobService) CreateContainer(_ context.Context, containerName string, _ *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.blobs[containerName]; ok {
		return azblob.CreateContainerResponse{}, &azcore.ResponseError{
			StatusCode: http.StatusConflict,
			ErrorCode:  string(bloberror.ContainerAlreadyExists),
		}
	}
	f.blobs[containerName] = make(map[string]StoredBlob)
	return azblob.CreateContainerResponse{}, nil
}
