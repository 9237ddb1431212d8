// Package minicluster runs an authority, its namespace and a set of storage
// nodes in one process, with a client that writes files the way a real
// pipeline would. It exists for end-to-end tests.
package minicluster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/datanode"
	"github.com/marmos91/dittomds/pkg/datanode/store/memory"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/mds/lease"
	"github.com/marmos91/dittomds/pkg/namespace"
)

// Options configures a Cluster.
type Options struct {
	// DataNodes is the number of storage nodes. Default: 3
	DataNodes int

	// Trash enables the namespace trash.
	Trash bool

	// Config tunes the authority. Default: mds.DefaultConfig()
	Config *mds.Config

	// Clock drives lease deadlines. Default: the system clock
	Clock lease.Clock
}

// Cluster is a running in-process cluster.
type Cluster struct {
	Authority *mds.Authority
	Namespace *namespace.Tree
	DataNodes []*datanode.Node

	byID   map[block.NodeID]*datanode.Node
	cancel context.CancelFunc
}

// New builds a cluster and starts the authority's background work.
// Shutdown stops it.
func New(opts Options) *Cluster {
	if opts.DataNodes == 0 {
		opts.DataNodes = 3
	}
	cfg := mds.DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	var mdsOpts []mds.Option
	if opts.Clock != nil {
		mdsOpts = append(mdsOpts, mds.WithClock(opts.Clock))
	}

	c := &Cluster{
		Namespace: namespace.New(namespace.Config{Trash: opts.Trash}),
		byID:      make(map[block.NodeID]*datanode.Node, opts.DataNodes),
	}
	c.Authority = mds.New(cfg, c.Namespace, mdsOpts...)

	for i := range opts.DataNodes {
		id := block.NodeID(fmt.Sprintf("dn-%d", i))
		n := datanode.New(id, memory.New(), datanode.WithReporter(c.Authority))
		c.Authority.RegisterNode(n)
		c.DataNodes = append(c.DataNodes, n)
		c.byID[id] = n
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.Authority.Start(ctx)

	logger.Debug("Mini cluster started", "datanodes", opts.DataNodes, "trash", opts.Trash)
	return c
}

// Shutdown stops the authority and closes every node.
func (c *Cluster) Shutdown() {
	c.cancel()
	c.Authority.Stop(5 * time.Second)
	for _, n := range c.DataNodes {
		_ = n.Close()
	}
}

// DataNode returns the node with the given identity.
func (c *Cluster) DataNode(id block.NodeID) (*datanode.Node, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// NewClient returns a client with a fresh holder name.
func (c *Cluster) NewClient() *Client {
	return &Client{
		cluster: c,
		holder:  block.HolderID("DFSClient_" + uuid.NewString()),
	}
}

// WaitComplete polls until the last block of id is COMPLETE or ctx ends.
func (c *Cluster) WaitComplete(ctx context.Context, id block.FileID) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s, ok := c.Authority.Session(id); ok && s.State == block.Complete {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("file %s not complete: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
