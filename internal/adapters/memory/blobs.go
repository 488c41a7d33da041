package memory

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"auditflow/internal/ports"
)

// Blobs is an object store kept in memory. Upload URLs point at BaseURL + "/blobs/<key>",
// which the HTTP server serves in dev mode; Transfer writes to the map directly.
type Blobs struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

var (
	_ ports.ObjectStore = (*Blobs)(nil)
	_ ports.Transferer  = (*Blobs)(nil)
)

const blobsPath = "/blobs/"

func NewBlobs(baseURL string) *Blobs {
	return &Blobs{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string][]byte{}}
}

// PresignPut returns the upload URL for key with its path escaped, so names holding '#',
// '?' or spaces survive the round trip through KeyFromURL.
func (b *Blobs) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return b.BaseURL + (&url.URL{Path: blobsPath + key}).EscapedPath(), nil
}

func (b *Blobs) Stat(_ context.Context, key string) (bool, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return ok, int64(len(data)), nil
}

func (b *Blobs) Put(key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	b.objects[key] = data
	b.mu.Unlock()
	return int64(len(data)), nil
}

func (b *Blobs) Get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return data, ok
}

// Transfer stores body under the key encoded in uploadURL.
func (b *Blobs) Transfer(ctx context.Context, uploadURL string, body io.Reader, size int64, _ string) error {
	key, err := KeyFromURL(uploadURL)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := b.Put(key, body)
	if err != nil {
		return err
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short upload: wrote %d of %d bytes", n, size)
	}
	return nil
}

// KeyFromURL extracts the object key from a /blobs/ upload URL.
func KeyFromURL(uploadURL string) (string, error) {
	u, err := url.Parse(uploadURL)
	if err != nil {
		return "", err
	}
	i := strings.Index(u.Path, blobsPath)
	if i < 0 {
		return "", fmt.Errorf("not a blob url: %s", uploadURL)
	}
	key := u.Path[i+len(blobsPath):]
	if key == "" {
		return "", fmt.Errorf("empty blob key: %s", uploadURL)
	}
	return key, nil
}
