package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/config"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/discovery"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/logger"
)

// Version is set at build time.
var Version = "dev"

// Debug enables verbose debug output.
var Debug bool

// JSONOutput enables JSON output format (default is text).
var JSONOutput bool

// NoColor disables color output.
var NoColor bool

var log = logger.New("cdpbridge")

var rootCmd = &cobra.Command{
	Use:           "cdpbridge",
	Short:         "DevTools protocol client for Node and Electron inspectors",
	Long:          "cdpbridge discovers debug targets on an inspector port, sends protocol commands and prints the events the debuggee pushes back.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if Debug {
			log.SetLevel(zapcore.DebugLevel)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	config.AddFlags(pf)
	pf.BoolVar(&Debug, "debug", false, "Enable verbose debug output (same as -v=debug)")
	pf.BoolVar(&JSONOutput, "json", false, "Output in JSON format (default is text)")
	pf.BoolVar(&NoColor, "no-color", false, "Disable color output")
	log.AddLevelFlag(pf)
	// Both set the log level.
	rootCmd.MarkFlagsMutuallyExclusive("debug", "verbosity")
	rootCmd.SetVersionTemplate("cdpbridge version {{.Version}}\n")
}

// debugf logs a debug message if debug mode is enabled.
func debugf(format string, args ...any) {
	log.V(1).Info(fmt.Sprintf(format, args...))
}

// Execute runs the root command with ctx.
// Supports command abbreviation via unique prefix matching.
func Execute(ctx context.Context) error {
	defer log.Flush()

	args := os.Args[1:]
	if len(args) > 0 {
		if expanded := tryExpandCommand(args[0]); expanded != "" {
			args[0] = expanded
			rootCmd.SetArgs(args)
		}
	}
	return rootCmd.ExecuteContext(ctx)
}

// tryExpandCommand attempts to expand a command abbreviation.
// Returns the expanded command if exactly one match is found, empty string otherwise.
func tryExpandCommand(prefix string) string {
	var matches []string
	for _, cmd := range rootCmd.Commands() {
		name := cmd.Name()
		if name == prefix {
			return ""
		}
		if len(prefix) < len(name) && name[:len(prefix)] == prefix {
			matches = append(matches, name)
		}
	}

	if len(matches) == 1 {
		return matches[0]
	}
	return ""
}

// ExecuteArgs runs a command with the given arguments and resets every flag
// afterwards, so repeated calls in one process start from defaults.
// Returns true if the command was recognized (even if it failed), false if unknown.
func ExecuteArgs(ctx context.Context, args []string) (recognized bool, err error) {
	if len(args) == 0 {
		return false, nil
	}

	cmd, _, findErr := rootCmd.Find(args)
	if findErr != nil || cmd == rootCmd {
		return false, nil
	}

	rootCmd.SetArgs(args)
	err = rootCmd.ExecuteContext(ctx)

	resetFlags := func(flags *pflag.FlagSet) {
		flags.VisitAll(func(f *pflag.Flag) {
			// Set("[]") would create a slice holding the literal "[]".
			defVal := f.DefValue
			if defVal == "[]" {
				defVal = ""
			}
			_ = f.Value.Set(defVal)
			f.Changed = false
		})
	}

	resetFlags(cmd.Flags())
	resetFlags(cmd.PersistentFlags())
	for parent := cmd.Parent(); parent != nil; parent = parent.Parent() {
		resetFlags(parent.PersistentFlags())
	}

	Debug = false
	JSONOutput = false
	NoColor = false
	log.SetLevel(zapcore.InfoLevel)

	return true, err
}

// commandContext returns the context the command was executed with.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadConfig resolves connection settings from file, environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.FromFlags(cmd.Flags())
}

func newDiscovery(cfg *config.Config) *discovery.Client {
	return discovery.New(cfg.Host, cfg.Port,
		discovery.WithTimeout(cfg.Timeout),
		discovery.WithLogger(log.Logger),
	)
}

// connectBridge builds a Bridge from the resolved settings and connects it.
// The caller closes it.
func connectBridge(ctx context.Context, cmd *cobra.Command) (*cdp.Bridge, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	debugf("Connecting to %s:%d", cfg.Host, cfg.Port)
	b := cdp.New(cfg.BridgeOptions(log.Logger))
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// closeBridge closes b with a bounded wait.
func closeBridge(b *cdp.Bridge) {
	ctx, cancel := context.WithTimeout(context.Background(), cdp.DefaultTimeout)
	defer cancel()
	if err := b.Close(ctx); err != nil {
		debugf("Close failed: %v", err)
	}
}

// isStdoutTTY returns true if stdout is a terminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// outputJSON writes a JSON response to the given writer.
// Pretty prints if stdout is a TTY, compact otherwise.
func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if isStdoutTTY() {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// outputSuccess writes {"ok":true,"data":...} to w.
func outputSuccess(w io.Writer, data any) error {
	resp := map[string]any{
		"ok": true,
	}
	if data != nil {
		resp["data"] = data
	}
	return outputJSON(w, resp)
}

// printedError is an error whose message has already been written to stderr.
type printedError struct {
	msg string
}

func (e *printedError) Error() string {
	return e.msg
}

// IsPrintedError reports whether err was already shown to the user.
func IsPrintedError(err error) bool {
	var p *printedError
	return errors.As(err, &p)
}

// outputError writes an error response to stderr and returns an error.
// Uses text format by default, JSON if --json flag is set.
func outputError(msg string) error {
	if JSONOutput {
		resp := map[string]any{
			"ok":    false,
			"error": msg,
		}
		_ = outputJSON(os.Stderr, resp)
	} else {
		if shouldUseColor() {
			color.New(color.FgRed).Fprint(os.Stderr, "Error:")
			fmt.Fprintf(os.Stderr, " %s\n", msg)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		}
	}
	return &printedError{msg: msg}
}

// shouldUseColor determines if color output should be used based on flags and environment.
func shouldUseColor() bool {
	if JSONOutput {
		return false
	}
	if NoColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
