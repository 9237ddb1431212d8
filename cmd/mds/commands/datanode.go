package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/api"
	"github.com/marmos91/dittomds/pkg/apiclient"
	"github.com/marmos91/dittomds/pkg/config"
	"github.com/marmos91/dittomds/pkg/datanode"
	"github.com/marmos91/dittomds/pkg/datanode/store"
	"github.com/marmos91/dittomds/pkg/datanode/store/badger"
	"github.com/marmos91/dittomds/pkg/datanode/store/memory"
	"github.com/marmos91/dittomds/pkg/datanode/transport"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/metrics"
)

var datanodeCmd = &cobra.Command{
	Use:   "datanode",
	Short: "Start a storage node",
	Long: `Start a storage node in the foreground.

The node keeps replica metadata in memory or in a badger directory and
serves the replica transport. When datanode.authority_url is set it
registers with the authority and reports finalized replicas to it.

Examples:
  # Start a node that registers with a local authority
  DITTOMDS_DATANODE_ID=dn-0 DITTOMDS_DATANODE_AUTHORITY_URL=http://localhost:8080 mds datanode`,
	RunE: runDatanode,
}

func openReplicaStore(cfg config.ReplicaStoreConfig) (store.ReplicaStore, error) {
	switch cfg.Type {
	case "badger":
		return badger.Open(cfg.Path)
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown replica store type: %s", cfg.Type)
	}
}

func runDatanode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdown, err := initObservability(ctx, cfg, "datanode")
	if err != nil {
		return err
	}
	defer shutdown()

	dn := cfg.Datanode
	st, err := openReplicaStore(dn.Store)
	if err != nil {
		return fmt.Errorf("failed to open replica store: %w", err)
	}

	id := block.NodeID(dn.ID)
	opts := []datanode.Option{datanode.WithMetrics(metrics.NewDatanodeMetrics())}

	var authority *apiclient.Client
	if dn.AuthorityURL != "" {
		authority = apiclient.New(dn.AuthorityURL)
		opts = append(opts, datanode.WithReporter(authority))
	}

	node := datanode.New(id, st, opts...)
	defer func() {
		if err := node.Close(); err != nil {
			logger.Error("Failed to close replica store", logger.KeyError, err)
		}
	}()
	logger.Info("Storage node created", logger.KeyNodeID, id, "store", dn.Store.Type)

	server := api.NewServer("datanode", dn.API, transport.NewRouter(node))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })

	if authority != nil {
		g.Go(func() error { return register(gctx, authority, id, dn.AdvertiseURL) })
	}

	err = g.Wait()
	if authority != nil {
		unregisterCtx, cancelUnregister := context.WithTimeout(context.Background(), 5*time.Second)
		if uerr := authority.UnregisterNode(unregisterCtx, id); uerr != nil {
			logger.Warn("Failed to unregister from authority", logger.KeyError, uerr)
		}
		cancelUnregister()
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("storage node stopped: %w", err)
	}
	logger.Info("Storage node stopped")
	return nil
}

// register announces the node to the authority, retrying until it succeeds
// or ctx ends.
func register(ctx context.Context, c *apiclient.Client, id block.NodeID, advertise string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		err := c.RegisterNode(ctx, id, advertise)
		if err == nil {
			logger.Info("Registered with authority", logger.KeyNodeID, id, "url", advertise)
			return nil
		}
		logger.Warn("Registration failed, retrying", logger.KeyNodeID, id, logger.KeyError, err)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
