package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cdp/cdptest"
	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/cli/format"
)

// newTestREPL returns a REPL connected to insp and its output buffers.
func newTestREPL(t *testing.T, insp *cdptest.Inspector) (*REPL, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	opts := cdp.DefaultOptions()
	opts.Host = insp.Host()
	opts.Port = insp.Port()
	opts.Timeout = 2 * time.Second
	opts.ConnectionRetryCount = 0

	b := cdp.New(opts)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	var out, errOut bytes.Buffer
	return NewREPL(b, &out, &errOut, format.OutputOptions{}), &out, &errOut
}

func TestExpandAbbreviation(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
		wantOK bool
	}{
		{"e", "exit", true},
		{"he", "help", true},
		{"hi", "history", true},
		{"h", "", false},
		{"HIST", "history", true},
		{"exit", "exit", true},
		{"xyz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, ok := expandAbbreviation(tt.prefix, replCommands)
			if ok != tt.wantOK {
				t.Errorf("expandAbbreviation(%q) ok = %v, want %v", tt.prefix, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("expandAbbreviation(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestMethodPattern(t *testing.T) {
	tests := map[string]bool{
		"Runtime.evaluate":   true,
		"Debugger.enable":    true,
		"process.pid":        false,
		"Math.PI":            false,
		"Runtime":            false,
		"Runtime.evaluate()": false,
	}
	for input, want := range tests {
		if got := methodPattern.MatchString(input); got != want {
			t.Errorf("methodPattern(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestREPL_SpecialCommands(t *testing.T) {
	insp := cdptest.New(t)
	r, out, errOut := newTestREPL(t, insp)
	ctx := context.Background()

	if r.handleLine(ctx, ".help") {
		t.Error(".help should not exit")
	}
	if !strings.Contains(out.String(), "Domain.method [params-json]") {
		t.Errorf("help not printed, got %q", out.String())
	}

	out.Reset()
	if r.handleLine(ctx, ".hi") {
		t.Error(".hi should not exit")
	}
	if out.String() != "  1  .help\n  2  .hi\n" {
		t.Errorf("unexpected history %q", out.String())
	}

	if r.handleLine(ctx, ".nope") {
		t.Error("unknown command should not exit")
	}
	if errOut.String() != "Error: unknown REPL command: .nope\n" {
		t.Errorf("unexpected error output %q", errOut.String())
	}

	if !r.handleLine(ctx, ".e") {
		t.Error(".e should exit")
	}
	if insp.Connections() != 1 {
		t.Errorf("expected one connection, got %d", insp.Connections())
	}
}

func TestREPL_SendsMethod(t *testing.T) {
	insp := cdptest.New(t, cdptest.WithHandler(func(p *cdptest.Peer, req cdptest.Request) {
		_ = p.Respond(req.ID, map[string]any{"method": req.Method})
	}))
	r, out, errOut := newTestREPL(t, insp)

	r.handleLine(context.Background(), `Debugger.setSkipAllPauses {"skip":true}`)

	if out.String() != `{"method":"Debugger.setSkipAllPauses"}`+"\n" {
		t.Errorf("unexpected output %q", out.String())
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected error output %q", errOut.String())
	}

	req := <-insp.Received()
	if string(req.Params) != `{"skip":true}` {
		t.Errorf("unexpected params %s", req.Params)
	}
}

func TestREPL_InvalidParams(t *testing.T) {
	insp := cdptest.New(t)
	r, _, errOut := newTestREPL(t, insp)

	r.handleLine(context.Background(), "Runtime.evaluate {nope")

	if !strings.HasPrefix(errOut.String(), "Error: invalid params") {
		t.Errorf("unexpected error output %q", errOut.String())
	}
	select {
	case req := <-insp.Received():
		t.Errorf("nothing should be sent, got %s", req.Method)
	default:
	}
}

func TestREPL_Evaluates(t *testing.T) {
	insp := cdptest.New(t, cdptest.WithHandler(evalHandler))
	r, out, errOut := newTestREPL(t, insp)
	ctx := context.Background()

	r.handleLine(ctx, "1 + 2")
	if out.String() != "3\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	r.handleLine(ctx, "missing")
	if errOut.String() != "Error: ReferenceError: missing is not defined\n" {
		t.Errorf("unexpected error output %q", errOut.String())
	}
}
