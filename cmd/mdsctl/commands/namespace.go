package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/cmd/mdsctl/cmdutil"
	"github.com/marmos91/dittomds/pkg/namespace"
)

var nsCmd = &cobra.Command{
	Use:     "namespace",
	Aliases: []string{"ns"},
	Short:   "Edit the path namespace",
}

var nsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every path",
	Args:    cobra.NoArgs,
	RunE:    runNsList,
}

var nsCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create an empty file",
	Args:  cobra.ExactArgs(1),
	RunE:  runNsCreate,
}

var nsRenameCmd = &cobra.Command{
	Use:     "rename <src> <dst>",
	Aliases: []string{"mv"},
	Short:   "Rename a file",
	Long: `Rename a file. Its identity, lease and blocks are kept; a writer that
still has it open will be refused when it closes.

Examples:
  mdsctl ns mv /file-1 /file-2`,
	Args: cobra.ExactArgs(2),
	RunE: runNsRename,
}

var nsRemoveCmd = &cobra.Command{
	Use:     "remove <path>",
	Aliases: []string{"rm"},
	Short:   "Delete a file, or move it to the trash when trash is enabled",
	Args:    cobra.ExactArgs(1),
	RunE:    runNsRemove,
}

func init() {
	nsCmd.AddCommand(nsListCmd)
	nsCmd.AddCommand(nsCreateCmd)
	nsCmd.AddCommand(nsRenameCmd)
	nsCmd.AddCommand(nsRemoveCmd)
}

type entryList []namespace.Entry

func (l entryList) Headers() []string { return []string{"PATH", "FILE", "EPOCH"} }

func (l entryList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, e := range l {
		rows[i] = []string{e.Path, e.FileID.String(), strconv.FormatUint(e.Epoch, 10)}
	}
	return rows
}

func runNsList(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	entries, err := cmdutil.GetClient().List(cmd.Context())
	if err != nil {
		return err
	}
	return p.PrintList(entries, len(entries), "Namespace is empty.", entryList(entries))
}

func runNsCreate(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	id, err := cmdutil.GetClient().Create(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return p.Print(namespace.Entry{Path: args[0], FileID: id}, entryList{{Path: args[0], FileID: id}})
}

func runNsRename(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}
	if err := cmdutil.GetClient().Rename(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	p.Message("Renamed %s to %s", args[0], args[1])
	return nil
}

func runNsRemove(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}
	if err := cmdutil.GetClient().Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	p.Message("Removed %s", args[0])
	return nil
}
