package cli

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
)

// closePollInterval is how often listen checks whether the connection dropped.
const closePollInterval = 250 * time.Millisecond

var listenCmd = &cobra.Command{
	Use:   "listen <event>...",
	Short: "Print protocol events as they arrive",
	Long: `Subscribes to the named events and prints each one until interrupted,
the connection closes or --count events have been printed.

The domain of every event (the part before the dot) is enabled first, so
"Runtime.consoleAPICalled" sends Runtime.enable. Use --no-enable to skip that.

Examples:
  cdpbridge listen Runtime.consoleAPICalled
  cdpbridge listen --resume --count 1 Runtime.executionContextCreated`,
	Args: cobra.MinimumNArgs(1),
	RunE: runListen,
}

func init() {
	listenCmd.Flags().Int("count", 0, "Exit after this many events (0 means no limit)")
	listenCmd.Flags().Bool("no-enable", false, "Do not send <Domain>.enable for the listened domains")
	listenCmd.Flags().Bool("resume", false, "Send Runtime.runIfWaitingForDebugger after subscribing")
	rootCmd.AddCommand(listenCmd)
}

// eventDomains returns the distinct domains of events, in first-seen order.
func eventDomains(events []string) []string {
	seen := make(map[string]bool)
	var domains []string
	for _, event := range events {
		domain, _, ok := strings.Cut(event, ".")
		if !ok || domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		domains = append(domains, domain)
	}
	return domains
}

func runListen(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	noEnable, _ := cmd.Flags().GetBool("no-enable")
	resume, _ := cmd.Flags().GetBool("resume")

	ctx := commandContext(cmd)
	b, err := connectBridge(ctx, cmd)
	if err != nil {
		return outputError(err.Error())
	}
	defer closeBridge(b)

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan format.EventData, 64)
	for _, name := range args {
		name := name
		sub := b.On(name, func(params json.RawMessage, sessionID string) {
			evt := format.EventData{Method: name, Params: params, SessionID: sessionID}
			select {
			case events <- evt:
			case <-listenCtx.Done():
			}
		})
		defer sub.Remove()
	}

	if !noEnable {
		for _, domain := range eventDomains(args) {
			debugf("Enabling %s", domain)
			if _, err := b.Send(ctx, domain+".enable", nil); err != nil {
				return outputError(err.Error())
			}
		}
	}
	if resume {
		if _, err := cdp.Invoke(ctx, b, cdp.RuntimeRunIfWaitingForDebugger, cdp.Empty{}); err != nil {
			return outputError(err.Error())
		}
	}

	opts := format.NewOutputOptions(JSONOutput, NoColor)
	ticker := time.NewTicker(closePollInterval)
	defer ticker.Stop()

	printed := 0
	for {
		select {
		case evt := <-events:
			if JSONOutput {
				err = outputJSON(cmd.OutOrStdout(), evt)
			} else {
				err = format.Event(cmd.OutOrStdout(), evt, opts)
			}
			if err != nil {
				return err
			}
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		case <-ticker.C:
			if state, _ := b.State(); state == cdp.StateClosed {
				return outputError(cdp.MsgConnectionClosed)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
