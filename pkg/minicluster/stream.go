package minicluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

// ErrStreamClosed is returned by operations on a closed OutputStream.
var ErrStreamClosed = errors.New("output stream closed")

// Client writes files on behalf of one lease holder.
type Client struct {
	cluster *Cluster
	holder  block.HolderID
}

// Holder returns the client's lease holder name.
func (c *Client) Holder() block.HolderID { return c.holder }

// Create creates path and opens it for write.
func (c *Client) Create(ctx context.Context, path string) (*OutputStream, error) {
	id, err := c.cluster.Namespace.Create(path)
	if err != nil {
		return nil, err
	}
	return c.open(ctx, id)
}

// Append opens the existing file at path for write.
func (c *Client) Append(ctx context.Context, path string) (*OutputStream, error) {
	id, err := c.cluster.Namespace.Resolve(path)
	if err != nil {
		return nil, err
	}
	return c.open(ctx, id)
}

// RenewLease renews every lease the client holds.
func (c *Client) RenewLease() int {
	return c.cluster.Authority.RenewLease(c.holder)
}

func (c *Client) open(ctx context.Context, id block.FileID) (*OutputStream, error) {
	lb, err := c.cluster.Authority.OpenForWrite(ctx, c.holder, id)
	if err != nil {
		return nil, err
	}
	return &OutputStream{client: c, fileID: id, block: lb}, nil
}

// OutputStream writes the last block of a file through its replica
// pipeline. It is not safe for concurrent use.
type OutputStream struct {
	client  *Client
	fileID  block.FileID
	block   mds.LocatedBlock
	written int64
	closed  bool
}

// FileID returns the identity of the file being written.
func (s *OutputStream) FileID() block.FileID { return s.fileID }

// Block returns the block being written as it was allocated.
func (s *OutputStream) Block() mds.LocatedBlock { return s.block }

// Written returns the bytes written to the current block.
func (s *OutputStream) Written() int64 { return s.written }

// Write pushes p to every node of the pipeline.
func (s *OutputStream) Write(ctx context.Context, p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	for _, id := range s.block.Nodes() {
		n, ok := s.client.cluster.DataNode(id)
		if !ok {
			return 0, fmt.Errorf("pipeline node %s is gone", id)
		}
		if _, err := n.Write(ctx, s.block.Block.ID, s.block.Block.GenStamp, int64(len(p))); err != nil {
			return 0, fmt.Errorf("write to %s: %w", id, err)
		}
	}
	s.written += int64(len(p))
	return len(p), nil
}

// Sync tells the authority how much of the block is durable.
func (s *OutputStream) Sync(ctx context.Context) error {
	if s.closed {
		return ErrStreamClosed
	}
	return s.client.cluster.Authority.Sync(ctx, s.client.holder, s.fileID, s.written)
}

// Close syncs, commits the block with the authority and then finalizes the
// pipeline's replicas. When the authority refuses the close the replicas
// are left as they are and the stream stays open, so the caller can
// inspect the error and recovery can take over.
func (s *OutputStream) Close(ctx context.Context) error {
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.Sync(ctx); err != nil {
		return err
	}
	if err := s.client.cluster.Authority.Close(ctx, s.client.holder, s.fileID); err != nil {
		return err
	}
	s.closed = true

	var errs []error
	for _, id := range s.block.Nodes() {
		n, ok := s.client.cluster.DataNode(id)
		if !ok {
			continue
		}
		if _, err := n.CommitReplica(ctx, s.block.Block.ID, s.written, s.block.Block.GenStamp, true); err != nil {
			errs = append(errs, fmt.Errorf("finalize on %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
