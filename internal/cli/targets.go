package cli

import (
	"github.com/spf13/cobra"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
)

var targetsCmd = &cobra.Command{
	Use:     "targets",
	Aliases: []string{"list"},
	Short:   "List debug targets",
	Long:    "Lists the debug targets advertised by the inspector's /json endpoint. The first target, marked with *, is the one other commands attach to.",
	Args:    cobra.NoArgs,
	RunE:    runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}

	targets, err := newDiscovery(cfg).List(commandContext(cmd))
	if err != nil {
		return outputError(err.Error())
	}
	debugf("Found %d targets", len(targets))

	if JSONOutput {
		return outputSuccess(cmd.OutOrStdout(), targets)
	}
	return format.Targets(cmd.OutOrStdout(), targets, format.NewOutputOptions(JSONOutput, NoColor))
}
