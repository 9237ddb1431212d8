package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittomds/pkg/api/handlers"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/mds/replica"
)

// Client reaches a remote datanode. It implements replica.StorageNode.
//
// Calls carry no timeout of their own; the caller's context bounds them.
type Client struct {
	id         block.NodeID
	baseURL    string
	httpClient *http.Client
}

var _ replica.StorageNode = (*Client)(nil)

// NewClient creates a client for the node id served at baseURL.
func NewClient(id block.NodeID, baseURL string) *Client {
	return &Client{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ID returns the node's identity.
func (c *Client) ID() block.NodeID { return c.id }

// ReportReplica fetches the node's state for blockID.
func (c *Client) ReportReplica(ctx context.Context, blockID block.ID) (block.Report, error) {
	var rep block.Report
	err := c.do(ctx, http.MethodGet, replicaPath(blockID), nil, &rep)
	return rep, err
}

// CommitReplica asks the node to commit blockID.
func (c *Client) CommitReplica(ctx context.Context, blockID block.ID, length int64, genStamp block.GenStamp, finalize bool) (block.Report, error) {
	var rep block.Report
	err := c.do(ctx, http.MethodPost, replicaPath(blockID)+"/commit",
		CommitRequest{Length: length, GenStamp: genStamp, Finalize: finalize}, &rep)
	return rep, err
}

// Write pushes size bytes of blockID to the node.
func (c *Client) Write(ctx context.Context, blockID block.ID, genStamp block.GenStamp, size int64) (block.Report, error) {
	var rep block.Report
	err := c.do(ctx, http.MethodPost, replicaPath(blockID)+"/write",
		WriteRequest{GenStamp: genStamp, Size: size}, &rep)
	return rep, err
}

func replicaPath(id block.ID) string {
	return "/replicas/" + strconv.FormatUint(uint64(id), 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("node %s: %w", c.id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var p handlers.Problem
		if json.Unmarshal(respBody, &p) == nil && p.Title != "" {
			return p.Err()
		}
		return fmt.Errorf("node %s: %s: %s", c.id, resp.Status, strings.TrimSpace(string(respBody)))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
