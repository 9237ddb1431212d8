// Package cmdutil holds state and helpers shared by mdsctl commands.
package cmdutil

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/internal/cli/output"
	"github.com/marmos91/dittomds/pkg/apiclient"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

// DefaultServerURL is the authority mdsctl talks to without --server.
const DefaultServerURL = "http://localhost:8080"

// GlobalFlags are the root command's persistent flags.
type GlobalFlags struct {
	ServerURL string
	Output    string
	NoColor   bool
	Verbose   bool
}

// Flags is populated by the root command before any subcommand runs.
var Flags = &GlobalFlags{ServerURL: DefaultServerURL, Output: "table"}

// GetClient returns an API client for the selected authority.
func GetClient() *apiclient.Client {
	return apiclient.New(Flags.ServerURL)
}

// GetOutputFormatParsed returns the --output flag as a Format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// Printer returns a Printer writing to the command's stdout in the selected
// format.
func Printer(cmd *cobra.Command) (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format), nil
}

// ParseFileID parses a file identity argument.
func ParseFileID(s string) (block.FileID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid file id %q", s)
	}
	return block.FileID(id), nil
}
