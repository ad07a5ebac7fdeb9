package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/discovery"
)

// Color helper functions that respect color.NoColor flag
func colorFprint(w io.Writer, c color.Attribute, s string) {
	color.New(c).Fprint(w, s)
}

func colorFprintf(w io.Writer, c color.Attribute, format string, args ...interface{}) {
	color.New(c).Fprintf(w, format, args...)
}

// OutputOptions controls text formatting behavior.
type OutputOptions struct {
	UseColor bool // Enable ANSI color codes
}

// NewOutputOptions returns output options based on flags and environment.
// Priority: jsonOutput > noColorFlag > NO_COLOR env > TTY detection.
func NewOutputOptions(jsonOutput bool, noColorFlag bool) OutputOptions {
	if jsonOutput {
		return OutputOptions{UseColor: false}
	}
	if noColorFlag {
		return OutputOptions{UseColor: false}
	}
	if os.Getenv("NO_COLOR") != "" {
		return OutputOptions{UseColor: false}
	}

	return OutputOptions{
		UseColor: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// ActionError outputs "Error: <message>" for failed commands.
func ActionError(w io.Writer, msg string, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgRed, "Error:")
		fmt.Fprintf(w, " %s\n", msg)
	} else {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
	return nil
}

// Targets outputs the debug target list. The first target, which a bridge
// connects to, is marked with "*".
func Targets(w io.Writer, targets []discovery.Target, opts OutputOptions) error {
	if len(targets) == 0 {
		if opts.UseColor {
			colorFprint(w, color.FgYellow, "No debug targets\n")
		} else {
			fmt.Fprintln(w, "No debug targets")
		}
		return nil
	}

	for i, target := range targets {
		// Truncate ID to 8 chars
		displayID := target.ID
		if len(displayID) > 8 {
			displayID = displayID[:8]
		}

		// Truncate title to 40 chars
		title := strings.TrimSpace(target.Title)
		if len(title) > 40 {
			title = title[:37] + "..."
		}

		prefix := "  "
		if i == 0 {
			prefix = "* "
		}

		if opts.UseColor {
			if i == 0 {
				colorFprint(w, color.FgCyan, prefix)
			} else {
				fmt.Fprint(w, prefix)
			}
			fmt.Fprintf(w, "%s - %s [", target.URL, title)
			colorFprint(w, color.FgCyan, displayID)
			fmt.Fprint(w, "] ")
			colorFprintf(w, color.FgHiBlack, "%s\n", target.WebSocketDebuggerURL)
		} else {
			fmt.Fprintf(w, "%s%s - %s [%s] %s\n", prefix, target.URL, title, displayID, target.WebSocketDebuggerURL)
		}
	}
	return nil
}

// Version outputs inspector version metadata, one "Key: value" line per
// non-empty field.
func Version(w io.Writer, info discovery.VersionInfo, opts OutputOptions) error {
	fields := []struct {
		label string
		value string
	}{
		{"Browser", info.Browser},
		{"Protocol-Version", info.ProtocolVersion},
		{"User-Agent", info.UserAgent},
		{"V8-Version", info.V8Version},
		{"WebKit-Version", info.WebKitVersion},
		{"WebSocket", info.WebSocketDebuggerURL},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if opts.UseColor {
			colorFprintf(w, color.FgCyan, "%s:", f.label)
			fmt.Fprintf(w, " %s\n", f.value)
		} else {
			fmt.Fprintf(w, "%s: %s\n", f.label, f.value)
		}
	}
	return nil
}

// EventData is one received protocol event.
type EventData struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Event outputs an event as "<method> [session] <params>".
func Event(w io.Writer, evt EventData, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgGreen, evt.Method)
	} else {
		fmt.Fprint(w, evt.Method)
	}

	if evt.SessionID != "" {
		fmt.Fprintf(w, " [%s]", evt.SessionID)
	}

	if params := compactJSON(evt.Params); params != "" && params != "{}" {
		fmt.Fprintf(w, " %s", params)
	}
	_, err := fmt.Fprintln(w)
	return err
}

// Result outputs a raw command result as compact JSON.
func Result(w io.Writer, result json.RawMessage) error {
	out := compactJSON(result)
	if out == "" {
		out = "{}"
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

// EvalResult outputs the value of a Runtime.evaluate result.
func EvalResult(w io.Writer, obj cdp.RemoteObject) error {
	switch {
	case obj.Type == "undefined":
		_, err := fmt.Fprintln(w, "undefined")
		return err
	case obj.UnserializableValue != "":
		// NaN, Infinity, -0 and bigints
		_, err := fmt.Fprintln(w, obj.UnserializableValue)
		return err
	case obj.Subtype == "null" || string(obj.Value) == "null":
		_, err := fmt.Fprintln(w, "null")
		return err
	case len(obj.Value) > 0:
		var s string
		if err := json.Unmarshal(obj.Value, &s); err == nil {
			_, err := fmt.Fprintln(w, s)
			return err
		}
		_, err := fmt.Fprintln(w, compactJSON(obj.Value))
		return err
	default:
		_, err := fmt.Fprintln(w, obj.Description)
		return err
	}
}

// LaunchData describes a started debuggee.
type LaunchData struct {
	PID   int    `json:"pid"`
	Port  int    `json:"port"`
	URL   string `json:"webSocketDebuggerUrl"`
	Title string `json:"title,omitempty"`
}

// Launch outputs the process and inspector details of a started debuggee.
func Launch(w io.Writer, data LaunchData, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgGreen, "Debugger listening")
		fmt.Fprintf(w, " on port %d (pid %d)\n", data.Port, data.PID)
	} else {
		fmt.Fprintf(w, "Debugger listening on port %d (pid %d)\n", data.Port, data.PID)
	}
	_, err := fmt.Fprintln(w, data.URL)
	return err
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
