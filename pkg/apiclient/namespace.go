package apiclient

import (
	"context"
	"net/url"

	"github.com/marmos91/dittomds/pkg/api/handlers"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/namespace"
)

// Create binds path to a new file.
func (c *Client) Create(ctx context.Context, path string) (block.FileID, error) {
	var resp handlers.FileResponse
	err := c.post(ctx, "/api/v1/namespace/files", handlers.PathRequest{Path: path}, &resp)
	return resp.FileID, err
}

// Resolve returns the file bound to path.
func (c *Client) Resolve(ctx context.Context, path string) (block.FileID, error) {
	var resp handlers.FileResponse
	err := c.get(ctx, "/api/v1/namespace/files?path="+url.QueryEscape(path), &resp)
	return resp.FileID, err
}

// Rename moves src to dst.
func (c *Client) Rename(ctx context.Context, src, dst string) error {
	return c.post(ctx, "/api/v1/namespace/rename", handlers.RenameRequest{Src: src, Dst: dst}, nil)
}

// Delete removes path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.delete(ctx, "/api/v1/namespace/files?path="+url.QueryEscape(path), nil)
}

// List returns every namespace binding.
func (c *Client) List(ctx context.Context) ([]namespace.Entry, error) {
	var out []namespace.Entry
	err := c.get(ctx, "/api/v1/namespace", &out)
	return out, err
}
