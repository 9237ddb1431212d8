package apiclient

import (
	"context"
	"net/url"

	"github.com/marmos91/dittomds/pkg/api/handlers"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

// Nodes lists the registered storage nodes.
func (c *Client) Nodes(ctx context.Context) ([]block.NodeID, error) {
	var nodes []block.NodeID
	err := c.get(ctx, "/api/v1/nodes", &nodes)
	return nodes, err
}

// RegisterNode registers the storage node id served at nodeURL.
func (c *Client) RegisterNode(ctx context.Context, id block.NodeID, nodeURL string) error {
	return c.post(ctx, "/api/v1/nodes", handlers.RegisterNodeRequest{ID: id, URL: nodeURL}, nil)
}

// UnregisterNode removes a storage node.
func (c *Client) UnregisterNode(ctx context.Context, id block.NodeID) error {
	return c.delete(ctx, "/api/v1/nodes/"+url.PathEscape(string(id)), nil)
}

// BlockReceived sends an incremental block report. It lets an HTTP datanode
// use the client as its datanode.Reporter.
func (c *Client) BlockReceived(ctx context.Context, r block.Report) error {
	return c.post(ctx, "/api/v1/nodes/"+url.PathEscape(string(r.Node))+"/blocks", r, nil)
}
