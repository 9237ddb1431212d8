package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/api"
	"github.com/marmos91/dittomds/pkg/datanode/transport"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/mds/replica"
	"github.com/marmos91/dittomds/pkg/metrics"
	"github.com/marmos91/dittomds/pkg/namespace"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/dittomds/pkg/metrics/prometheus"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the metadata authority",
	Long: `Start the metadata authority in the foreground.

The authority serves the lease, recovery and namespace API and registers
the storage nodes listed under cluster.storage_nodes. Other storage nodes
join by registering themselves through the API.

Examples:
  # Start with the default config location
  mds start

  # Start with a custom config file
  mds start --config /etc/dittomds/config.yaml

  # Override settings from the environment
  DITTOMDS_MDS_LEASE_SOFT_LIMIT=30s mds start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdown, err := initObservability(ctx, cfg, "authority")
	if err != nil {
		return err
	}
	defer shutdown()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	tree := namespace.New(cfg.Namespace)
	authority := mds.New(cfg.MDS, tree, mds.WithMetricsRegistry(metrics.Registerer()))

	for _, n := range cfg.Cluster.StorageNodes {
		authority.RegisterNode(dialNode(block.NodeID(n.ID), n.URL))
		logger.Info("Storage node configured", logger.KeyNodeID, n.ID, "url", n.URL)
	}

	authority.Start(ctx)
	defer authority.Stop(cfg.ShutdownTimeout)

	if !cfg.API.IsEnabled() {
		logger.Warn("API server disabled, the authority is unreachable")
		<-ctx.Done()
		return nil
	}

	server := api.NewServer("authority", cfg.API, api.NewRouter(api.Dependencies{
		Authority: authority,
		Namespace: tree,
		Dial:      dialNode,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })

	logger.Info("Authority is running. Press Ctrl+C to stop.", "port", server.Port())
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("authority stopped: %w", err)
	}
	logger.Info("Authority stopped")
	return nil
}

func dialNode(id block.NodeID, url string) replica.StorageNode {
	return transport.NewClient(id, url)
}

