package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/cmd/mdsctl/cmdutil"
	"github.com/marmos91/dittomds/internal/cli/output"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

var leaseCmd = &cobra.Command{
	Use:   "lease",
	Short: "Inspect and renew write leases",
}

var leaseStatusCmd = &cobra.Command{
	Use:   "status <file-id>",
	Short: "Show the lease on a file",
	Long: `Show who holds the write lease on a file and when it expires.

Examples:
  mdsctl lease status 16386
  mdsctl lease status 16386 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runLeaseStatus,
}

var leaseRenewCmd = &cobra.Command{
	Use:   "renew <holder>",
	Short: "Renew every lease held by a client",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeaseRenew,
}

func init() {
	leaseCmd.AddCommand(leaseStatusCmd)
	leaseCmd.AddCommand(leaseRenewCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func leaseTable(s mds.LeaseStatus) output.KeyValues {
	return output.KeyValues{
		{"File", s.FileID.String()},
		{"Holder", string(s.Holder)},
		{"Acquired", formatTime(s.Acquired)},
		{"Renewed", formatTime(s.Renewed)},
		{"Soft expiry", formatTime(s.SoftExpiry)},
		{"Hard expiry", formatTime(s.HardExpiry)},
		{"Soft expired", strconv.FormatBool(s.SoftExpired)},
		{"Hard expired", strconv.FormatBool(s.HardExpired)},
	}
}

func runLeaseStatus(cmd *cobra.Command, args []string) error {
	id, err := cmdutil.ParseFileID(args[0])
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	status, err := cmdutil.GetClient().LeaseStatus(cmd.Context(), id)
	if err != nil {
		return err
	}
	return p.Print(status, leaseTable(status))
}

func runLeaseRenew(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	n, err := cmdutil.GetClient().RenewLease(cmd.Context(), block.HolderID(args[0]))
	if err != nil {
		return err
	}
	if p.Format() != output.FormatTable {
		return p.Print(map[string]int{"renewed": n}, nil)
	}
	p.Message("Renewed %d lease(s) held by %s", n, args[0])
	return nil
}
