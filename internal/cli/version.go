package cli

import (
	"github.com/spf13/cobra"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show inspector version metadata",
	Long:  "Fetches /json/version from the inspector. Use --version for the version of this tool.",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}

	info, err := newDiscovery(cfg).Version(commandContext(cmd))
	if err != nil {
		return outputError(err.Error())
	}

	if JSONOutput {
		return outputSuccess(cmd.OutOrStdout(), info)
	}
	return format.Version(cmd.OutOrStdout(), info, format.NewOutputOptions(JSONOutput, NoColor))
}
