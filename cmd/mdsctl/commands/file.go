package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/cmd/mdsctl/cmdutil"
	"github.com/marmos91/dittomds/internal/cli/output"
	"github.com/marmos91/dittomds/pkg/mds"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks <file-id>",
	Short: "List a file's blocks and replica locations",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlocks,
}

var sessionCmd = &cobra.Command{
	Use:   "session <file-id>",
	Short: "Show the write session of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSession,
}

type blockList []mds.LocatedBlock

func (l blockList) Headers() []string {
	return []string{"BLOCK", "GEN STAMP", "OFFSET", "LENGTH", "STATE", "LOCATIONS"}
}

func (l blockList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, b := range l {
		rows = append(rows, []string{
			b.Block.ID.String(),
			strconv.FormatUint(uint64(b.Block.GenStamp), 10),
			strconv.FormatInt(b.Offset, 10),
			strconv.FormatInt(b.Block.Length, 10),
			b.State.String(),
			nodeList(b.Nodes()),
		})
	}
	return rows
}

func runBlocks(cmd *cobra.Command, args []string) error {
	id, err := cmdutil.ParseFileID(args[0])
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	blocks, err := cmdutil.GetClient().BlockLocations(cmd.Context(), id)
	if err != nil {
		return err
	}
	return p.PrintList(blocks, len(blocks), "File has no blocks.", blockList(blocks))
}

func runSession(cmd *cobra.Command, args []string) error {
	id, err := cmdutil.ParseFileID(args[0])
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	s, err := cmdutil.GetClient().Session(cmd.Context(), id)
	if err != nil {
		return err
	}
	return p.Print(s, output.KeyValues{
		{"File", s.FileID.String()},
		{"State", s.State.String()},
		{"Last block", s.Last.String()},
		{"Blocks", strconv.Itoa(len(s.Blocks) + 1)},
		{"Length", strconv.FormatInt(s.Length(), 10)},
		{"Binding epoch", strconv.FormatUint(s.BindingEpoch, 10)},
		{"Opened", formatTime(s.Opened)},
		{"Orphaned", strconv.FormatBool(s.Orphaned)},
		{"Orphaned at", formatTime(s.OrphanedAt)},
		{"Recovering", strconv.FormatBool(s.Recovering)},
	})
}
