package apiclient

import (
	"context"
	"fmt"

	"github.com/marmos91/dittomds/pkg/api/handlers"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/mds/recovery"
	"github.com/marmos91/dittomds/pkg/mds/session"
)

func filePath(id block.FileID, op string) string {
	return fmt.Sprintf("/api/v1/files/%d/%s", id, op)
}

// OpenForWrite opens fileID for writing on behalf of holder.
func (c *Client) OpenForWrite(ctx context.Context, holder block.HolderID, id block.FileID) (mds.LocatedBlock, error) {
	var lb mds.LocatedBlock
	err := c.post(ctx, filePath(id, "open"), handlers.HolderRequest{Holder: holder}, &lb)
	return lb, err
}

// Sync records the synced length of the last block.
func (c *Client) Sync(ctx context.Context, holder block.HolderID, id block.FileID, length int64) error {
	return c.post(ctx, filePath(id, "sync"), handlers.SyncRequest{Holder: holder, Length: length}, nil)
}

// AddBlock seals the last block and allocates the next.
func (c *Client) AddBlock(ctx context.Context, holder block.HolderID, id block.FileID) (mds.LocatedBlock, error) {
	var lb mds.LocatedBlock
	err := c.post(ctx, filePath(id, "addblock"), handlers.HolderRequest{Holder: holder}, &lb)
	return lb, err
}

// Close commits the last block and releases the lease.
func (c *Client) Close(ctx context.Context, holder block.HolderID, id block.FileID) error {
	return c.post(ctx, filePath(id, "close"), handlers.HolderRequest{Holder: holder}, nil)
}

// BlockLocations lists the blocks of fileID.
func (c *Client) BlockLocations(ctx context.Context, id block.FileID) ([]mds.LocatedBlock, error) {
	var blocks []mds.LocatedBlock
	err := c.get(ctx, filePath(id, "blocks"), &blocks)
	return blocks, err
}

// Session returns the write session of fileID.
func (c *Client) Session(ctx context.Context, id block.FileID) (session.Session, error) {
	var s session.Session
	err := c.get(ctx, filePath(id, "session"), &s)
	return s, err
}

// LeaseStatus returns the lease on fileID.
func (c *Client) LeaseStatus(ctx context.Context, id block.FileID) (mds.LeaseStatus, error) {
	var st mds.LeaseStatus
	err := c.get(ctx, filePath(id, "lease"), &st)
	return st, err
}

// TriggerRecovery runs recovery of fileID and returns the attempt's result.
func (c *Client) TriggerRecovery(ctx context.Context, id block.FileID) (recovery.Result, error) {
	var res recovery.Result
	err := c.post(ctx, filePath(id, "recover"), nil, &res)
	return res, err
}

// RenewLease renews every lease of holder.
func (c *Client) RenewLease(ctx context.Context, holder block.HolderID) (int, error) {
	var resp handlers.RenewResponse
	err := c.post(ctx, "/api/v1/leases/renew", handlers.HolderRequest{Holder: holder}, &resp)
	return resp.Renewed, err
}

// Recoveries returns the recovery history of every file.
func (c *Client) Recoveries(ctx context.Context) ([]recovery.FileStatus, error) {
	var out []recovery.FileStatus
	err := c.get(ctx, "/api/v1/recoveries", &out)
	return out, err
}
