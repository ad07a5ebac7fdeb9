package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session against the debuggee",
	Long: `Opens one connection and reads lines interactively.

A line of the form "Domain.method [params-json]" is sent as a protocol
command and its result printed. Any other line is evaluated as JavaScript.
Lines starting with "." are REPL commands; type .help to list them.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runREPL(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	b, err := connectBridge(ctx, cmd)
	if err != nil {
		return outputError(err.Error())
	}
	defer closeBridge(b)

	r := NewREPL(b, cmd.OutOrStdout(), cmd.ErrOrStderr(), format.NewOutputOptions(JSONOutput, NoColor))
	return r.Run(ctx)
}

// methodPattern matches a protocol method name such as Runtime.evaluate.
var methodPattern = regexp.MustCompile(`^[A-Z][A-Za-z]*\.[a-z][A-Za-z]*$`)

// replCommands lists REPL-specific commands for abbreviation matching.
var replCommands = []string{"exit", "help", "history"}

// REPL reads protocol commands and expressions and prints their results.
type REPL struct {
	bridge  *cdp.Bridge
	out     io.Writer
	errOut  io.Writer
	opts    format.OutputOptions
	history []string
}

// NewREPL creates a REPL over a connected bridge.
func NewREPL(b *cdp.Bridge, out, errOut io.Writer, opts format.OutputOptions) *REPL {
	return &REPL{
		bridge: b,
		out:    out,
		errOut: errOut,
		opts:   opts,
	}
}

// Run starts the REPL loop. Blocks until .exit, EOF, Ctrl-C or the
// connection closing.
func (r *REPL) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("cdpbridge> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if r.handleLine(ctx, input) {
			return nil
		}
		if state, _ := r.bridge.State(); state == cdp.StateClosed {
			return outputError(cdp.MsgConnectionClosed)
		}
	}
}

// expandAbbreviation expands a command prefix to a full command name.
// Returns the expanded command and true if exactly one match found.
func expandAbbreviation(prefix string, commands []string) (string, bool) {
	prefix = strings.ToLower(prefix)
	var matches []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, prefix) {
			matches = append(matches, cmd)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

// handleLine executes one input line and reports whether the REPL should exit.
func (r *REPL) handleLine(ctx context.Context, line string) bool {
	r.history = append(r.history, line)

	if strings.HasPrefix(line, ".") {
		return r.handleSpecialCommand(line[1:])
	}

	method, params, _ := strings.Cut(line, " ")
	if methodPattern.MatchString(method) {
		r.send(ctx, method, strings.TrimSpace(params))
		return false
	}

	r.evaluate(ctx, line)
	return false
}

// handleSpecialCommand runs a dot command and reports whether it was .exit.
func (r *REPL) handleSpecialCommand(name string) bool {
	cmd := strings.ToLower(strings.TrimSpace(name))
	if expanded, ok := expandAbbreviation(cmd, replCommands); ok {
		cmd = expanded
	}

	switch cmd {
	case "exit":
		return true
	case "help":
		r.printHelp()
	case "history":
		r.printHistory()
	default:
		r.printError(fmt.Sprintf("unknown REPL command: .%s", name))
	}
	return false
}

func (r *REPL) send(ctx context.Context, method, params string) {
	var payload any
	if params != "" {
		if !json.Valid([]byte(params)) {
			r.printError(fmt.Sprintf("invalid params: not valid JSON: %s", params))
			return
		}
		payload = json.RawMessage(params)
	}

	result, err := r.bridge.Send(ctx, method, payload)
	if err != nil {
		r.printError(err.Error())
		return
	}
	_ = format.Result(r.out, result)
}

func (r *REPL) evaluate(ctx context.Context, expression string) {
	res, err := cdp.Invoke(ctx, r.bridge, cdp.RuntimeEvaluate, cdp.EvaluateParams{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
	})
	if err != nil {
		r.printError(err.Error())
		return
	}
	if res.ExceptionDetails != nil {
		r.printError(res.ExceptionDetails.Error())
		return
	}
	_ = format.EvalResult(r.out, res.Result)
}

func (r *REPL) printError(msg string) {
	_ = format.ActionError(r.errOut, msg, r.opts)
}

// printHelp displays available commands.
func (r *REPL) printHelp() {
	help := `Input:
  Domain.method [params-json]  Send a protocol command, e.g. Debugger.enable
  <expression>                 Evaluate JavaScript (promises are awaited)

REPL commands (unique prefixes accepted: .e=exit, .he=help, .hi=history):
  .help     Show this help
  .history  Show input history
  .exit     Close the connection and exit
`
	fmt.Fprint(r.out, help)
}

// printHistory displays input history.
func (r *REPL) printHistory() {
	for i, line := range r.history {
		fmt.Fprintf(r.out, "  %d  %s\n", i+1, line)
	}
}
