package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/cmd/mdsctl/cmdutil"
	"github.com/marmos91/dittomds/internal/cli/output"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/mds/recovery"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <file-id>",
	Short: "Recover a file now",
	Long: `Start block recovery on a file and wait for the attempt to end.

The current lease holder is fenced: its replicas are moved to a new
generation stamp and the file is closed at the length the surviving
replicas agree on. A recovery already running is joined, not restarted.

Examples:
  mdsctl recover 16386`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

var recoveriesCmd = &cobra.Command{
	Use:   "recoveries",
	Short: "List recovery history",
	Args:  cobra.NoArgs,
	RunE:  runRecoveries,
}

func nodeList(nodes []block.NodeID) string {
	if len(nodes) == 0 {
		return "-"
	}
	s := make([]string, len(nodes))
	for i, n := range nodes {
		s[i] = string(n)
	}
	return strings.Join(s, ",")
}

func resultTable(r recovery.Result) output.KeyValues {
	kv := output.KeyValues{
		{"File", r.FileID.String()},
		{"Block", r.Block.String()},
		{"Trigger", string(r.Trigger)},
		{"State", r.State.String()},
		{"Reports", strconv.Itoa(r.Reports)},
		{"Agreed", r.Agreed.String()},
		{"Replicas", nodeList(r.Replicas)},
		{"Started", formatTime(r.Started)},
		{"Finished", formatTime(r.Finished)},
	}
	if r.Error != "" {
		kv = append(kv, [2]string{"Error", r.Error})
	}
	return kv
}

func runRecover(cmd *cobra.Command, args []string) error {
	id, err := cmdutil.ParseFileID(args[0])
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	res, err := cmdutil.GetClient().TriggerRecovery(cmd.Context(), id)
	if err != nil {
		return err
	}
	return p.Print(res, resultTable(res))
}

type recoveryList []recovery.FileStatus

func (l recoveryList) Headers() []string {
	return []string{"FILE", "STATE", "TRIGGER", "AGREED", "FAILURES", "IN FLIGHT", "NEXT ATTEMPT", "UNRECOVERABLE"}
}

func (l recoveryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{
			s.FileID.String(),
			s.Last.State.String(),
			string(s.Last.Trigger),
			s.Last.Agreed.String(),
			strconv.Itoa(s.Failures),
			strconv.FormatBool(s.InFlight),
			formatTime(s.NextAttempt),
			strconv.FormatBool(s.Unrecoverable),
		})
	}
	return rows
}

func runRecoveries(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	list, err := cmdutil.GetClient().Recoveries(cmd.Context())
	if err != nil {
		return err
	}
	return p.PrintList(list, len(list), "No recoveries.", recoveryList(list))
}
