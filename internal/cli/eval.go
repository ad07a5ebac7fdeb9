package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate JavaScript in the debuggee",
	Long:  "Evaluates a JavaScript expression in the debuggee's global context with Runtime.evaluate and prints the result.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEval,
}

func init() {
	evalCmd.Flags().Bool("await", false, "Await the result if it is a promise")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	await, _ := cmd.Flags().GetBool("await")

	// Join all args to form the expression (allows shell-friendly use without quotes)
	expression := strings.Join(args, " ")

	ctx := commandContext(cmd)
	b, err := connectBridge(ctx, cmd)
	if err != nil {
		return outputError(err.Error())
	}
	defer closeBridge(b)

	res, err := cdp.Invoke(ctx, b, cdp.RuntimeEvaluate, cdp.EvaluateParams{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  await,
	})
	if err != nil {
		return outputError(err.Error())
	}
	if res.ExceptionDetails != nil {
		return outputError(res.ExceptionDetails.Error())
	}

	if JSONOutput {
		result := map[string]any{
			"ok":   true,
			"type": res.Result.Type,
		}
		// Only include value if it was present (not undefined)
		if len(res.Result.Value) > 0 {
			result["value"] = res.Result.Value
		} else if res.Result.UnserializableValue != "" {
			result["value"] = res.Result.UnserializableValue
		}
		return outputJSON(cmd.OutOrStdout(), result)
	}
	return format.EvalResult(cmd.OutOrStdout(), res.Result)
}
