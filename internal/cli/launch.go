package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/debuggee"
)

var launchCmd = &cobra.Command{
	Use:   "launch <script> [args...]",
	Short: "Run a script under node with the inspector enabled",
	Long: `Starts node with --inspect (or --inspect-brk with --brk), waits for the
inspector to list a target, prints its WebSocket URL and keeps the process
running until it exits or cdpbridge is interrupted.

With --watch, the script is restarted on the same inspector port whenever a
file under the watched paths changes, and cdpbridge keeps running after the
script exits.

The node binary is taken from $` + debuggee.EnvNode + ` or searched on PATH.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().Int("inspect-port", 0, "Inspector port for the new process (0 picks a free port)")
	launchCmd.Flags().Bool("brk", false, "Pause before the first line until a debugger resumes")
	launchCmd.Flags().Bool("quiet", false, "Discard the script's stdout and stderr")
	launchCmd.Flags().StringSlice("watch", nil, "Restart the script when files under these paths change")
	launchCmd.Flags().StringSlice("ignore", nil, "Glob patterns excluded from --watch")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("inspect-port")
	brk, _ := cmd.Flags().GetBool("brk")
	quiet, _ := cmd.Flags().GetBool("quiet")
	watchPaths, _ := cmd.Flags().GetStringSlice("watch")
	ignore, _ := cmd.Flags().GetStringSlice("ignore")

	opts := debuggee.LaunchOptions{
		Script: args[0],
		Args:   args[1:],
		Port:   port,
		Brk:    brk,
	}
	if !quiet {
		opts.Stdout = os.Stdout
		opts.Stderr = os.Stderr
	}

	ctx := commandContext(cmd)
	proc, err := launchDebuggee(ctx, cmd, opts)
	if err != nil {
		return outputError(err.Error())
	}
	defer func() {
		_ = proc.Close()
	}()

	if len(watchPaths) == 0 {
		select {
		case <-proc.Exited():
			debugf("Process %d exited", proc.PID())
		case <-ctx.Done():
			debugf("Interrupted, stopping process %d", proc.PID())
		}
		return nil
	}

	changes := make(chan string, 1)
	w, err := debuggee.NewWatcher(debuggee.WatchOptions{
		Paths:  watchPaths,
		Ignore: ignore,
		OnChange: func(path string) {
			select {
			case changes <- path:
			default:
			}
		},
	}, log.Logger)
	if err != nil {
		return outputError(err.Error())
	}
	if err := w.Start(); err != nil {
		return outputError(err.Error())
	}
	defer w.Stop()

	// Restarts reuse the port so attached tools can reconnect to it.
	opts.Port = proc.Port()
	exited := proc.Exited()
	for {
		select {
		case path := <-changes:
			log.Info("Restarting debuggee", "changed", path)
			_ = proc.Close()
			proc, err = launchDebuggee(ctx, cmd, opts)
			if err != nil {
				return outputError(err.Error())
			}
			exited = proc.Exited()
		case <-exited:
			debugf("Process %d exited, waiting for changes", proc.PID())
			exited = nil
		case <-ctx.Done():
			debugf("Interrupted, stopping process %d", proc.PID())
			return nil
		}
	}
}

// launchDebuggee starts node, waits for its first target and prints where
// the inspector is listening.
func launchDebuggee(ctx context.Context, cmd *cobra.Command, opts debuggee.LaunchOptions) (*debuggee.Process, error) {
	proc, err := debuggee.Launch(ctx, opts, log.Logger)
	if err != nil {
		return nil, err
	}

	targetCtx, cancel := context.WithTimeout(ctx, debuggee.StartTimeout)
	targets, err := proc.Targets(targetCtx)
	cancel()
	if err != nil {
		_ = proc.Close()
		return nil, err
	}

	data := format.LaunchData{PID: proc.PID(), Port: proc.Port()}
	if len(targets) > 0 {
		data.URL = targets[0].WebSocketDebuggerURL
		data.Title = targets[0].Title
	}

	if JSONOutput {
		err = outputSuccess(cmd.OutOrStdout(), data)
	} else {
		err = format.Launch(cmd.OutOrStdout(), data, format.NewOutputOptions(JSONOutput, NoColor))
	}
	if err != nil {
		_ = proc.Close()
		return nil, err
	}
	return proc, nil
}
