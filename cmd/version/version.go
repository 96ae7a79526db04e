package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiorouter/internal/buildinfo"
)

// Command creates a new cobra.Command to print build information.
func Command(info buildinfo.BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of audiorouter",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "audiorouter %s (built %s, %s %s/%s)\n",
				info.GetVersion(), info.GetBuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}

	return cmd
}
