package rpc

import (
	"context"
	"sync"

	"github.com/steveyegge/atlas/internal/cache"
)

// Fallback answers queries through the daemon when it is reachable and
// from the on-disk index otherwise, using the same query code.
type Fallback struct {
	client *Client
	open   func() (*cache.Cache, error)

	once sync.Once
	disk *cache.Cache
	err  error

	// UsedDisk is set once any query was answered from disk.
	UsedDisk bool
}

// NewFallback wraps client. open loads the index from disk on first need.
func NewFallback(client *Client, open func() (*cache.Cache, error)) *Fallback {
	return &Fallback{client: client, open: open}
}

func (f *Fallback) local() (*cache.Cache, error) {
	f.once.Do(func() {
		f.disk, f.err = f.open()
	})
	f.UsedDisk = true
	return f.disk, f.err
}

// Find runs find.
func (f *Fallback) Find(ctx context.Context, keyword string) ([]cache.Hit, error) {
	hits, err := f.client.Find(ctx, keyword)
	if err == nil || !IsUnreachable(err) {
		return hits, err
	}
	c, err := f.local()
	if err != nil {
		return nil, err
	}
	return c.Find(keyword), nil
}

// Scope runs scope.
func (f *Fallback) Scope(ctx context.Context, paths []string) ([]cache.FileScope, error) {
	files, err := f.client.Scope(ctx, paths)
	if err == nil || !IsUnreachable(err) {
		return files, err
	}
	c, err := f.local()
	if err != nil {
		return nil, err
	}
	return c.Scope(paths), nil
}

// Status runs status.
func (f *Fallback) Status(ctx context.Context) (*StatusResult, error) {
	res, err := f.client.Status(ctx)
	if err == nil || !IsUnreachable(err) {
		return res, err
	}
	c, err := f.local()
	if err != nil {
		return nil, err
	}
	return &StatusResult{Stats: c.Stats(), Source: "disk"}, nil
}
