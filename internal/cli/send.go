package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
)

var sendCmd = &cobra.Command{
	Use:   "send <method> [params-json]",
	Short: "Send a protocol command and print its result",
	Long: `Sends one command over a fresh connection and prints the result.

Examples:
  cdpbridge send Runtime.enable
  cdpbridge send Runtime.evaluate '{"expression":"process.pid","returnByValue":true}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	method := args[0]

	var params json.RawMessage
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return outputError(fmt.Sprintf("invalid params: not valid JSON: %s", args[1]))
		}
		params = json.RawMessage(args[1])
	}

	ctx := commandContext(cmd)
	b, err := connectBridge(ctx, cmd)
	if err != nil {
		return outputError(err.Error())
	}
	defer closeBridge(b)

	var payload any
	if params != nil {
		payload = params
	}
	result, err := b.Send(ctx, method, payload)
	if err != nil {
		return outputError(err.Error())
	}

	if JSONOutput {
		return outputSuccess(cmd.OutOrStdout(), result)
	}
	return format.Result(cmd.OutOrStdout(), result)
}
