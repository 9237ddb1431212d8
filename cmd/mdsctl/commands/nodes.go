package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/cmd/mdsctl/cmdutil"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List and manage storage nodes",
	Args:  cobra.NoArgs,
	RunE:  runNodesList,
}

var nodesAddCmd = &cobra.Command{
	Use:   "add <id> <url>",
	Short: "Register a storage node",
	Long: `Register a storage node with the authority.

Examples:
  mdsctl nodes add dn-3 http://dn-3:9870`,
	Args: cobra.ExactArgs(2),
	RunE: runNodesAdd,
}

var nodesRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Unregister a storage node",
	Args:    cobra.ExactArgs(1),
	RunE:    runNodesRemove,
}

func init() {
	nodesCmd.AddCommand(nodesAddCmd)
	nodesCmd.AddCommand(nodesRemoveCmd)
}

type nodeIDList []block.NodeID

func (l nodeIDList) Headers() []string { return []string{"NODE"} }

func (l nodeIDList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, n := range l {
		rows[i] = []string{string(n)}
	}
	return rows
}

func runNodesList(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	nodes, err := cmdutil.GetClient().Nodes(cmd.Context())
	if err != nil {
		return err
	}
	return p.PrintList(nodes, len(nodes), "No storage nodes registered.", nodeIDList(nodes))
}

func runNodesAdd(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}
	if err := cmdutil.GetClient().RegisterNode(cmd.Context(), block.NodeID(args[0]), args[1]); err != nil {
		return err
	}
	p.Message("Storage node %s registered at %s", args[0], args[1])
	return nil
}

func runNodesRemove(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}
	if err := cmdutil.GetClient().UnregisterNode(cmd.Context(), block.NodeID(args[0])); err != nil {
		return err
	}
	p.Message("Storage node %s unregistered", args[0])
	return nil
}
