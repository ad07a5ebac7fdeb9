package debuggee

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/webdriverio-community/wdio-electron-service-sub000/internal/discovery"
)

// StartTimeout bounds the wait for the inspector port to open.
const StartTimeout = 30 * time.Second

// killDelay is how long Close waits after an interrupt before killing.
const killDelay = 3 * time.Second

// ErrStartTimeout is returned when the inspector does not come up in time.
var ErrStartTimeout = errors.New("debuggee start timeout")

// Process is a running node process with its inspector enabled.
type Process struct {
	cmd       *exec.Cmd
	port      int
	discovery *discovery.Client
	log       logr.Logger

	exited chan struct{}
	waitErr error

	closeOnce sync.Once
}

// Launch starts opts.Script under the node found by FindNode.
func Launch(ctx context.Context, opts LaunchOptions, log logr.Logger) (*Process, error) {
	binPath, err := FindNode()
	if err != nil {
		return nil, err
	}
	return LaunchWithBinary(ctx, binPath, opts, log)
}

// LaunchWithBinary starts node from binPath and waits until the inspector
// lists at least one target.
func LaunchWithBinary(ctx context.Context, binPath string, opts LaunchOptions, log logr.Logger) (*Process, error) {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithName("debuggee")

	if opts.Port == 0 {
		port, err := findAvailablePort()
		if err != nil {
			return nil, fmt.Errorf("find free port: %w", err)
		}
		opts.Port = port
	}

	cmd, err := spawnProcess(binPath, opts)
	if err != nil {
		return nil, err
	}

	p := &Process{
		cmd:    cmd,
		port:   opts.Port,
		log:    log,
		exited: make(chan struct{}),
		discovery: discovery.New(Host, opts.Port,
			discovery.WithTimeout(StartTimeout),
			discovery.WithLogger(log),
		),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	log.V(1).Info("Started node", "pid", p.PID(), "port", p.port, "script", opts.Script)

	startCtx, cancel := context.WithTimeout(ctx, StartTimeout)
	defer cancel()

	if err := p.waitForInspector(startCtx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// waitForInspector polls discovery until a target appears, the process
// exits or ctx ends.
func (p *Process) waitForInspector(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.exited:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		targets, err := p.discovery.List(ctx)
		if err == nil && len(targets) > 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			select {
			case <-p.exited:
				return fmt.Errorf("node exited before the inspector was ready: %v", p.waitErr)
			default:
				return ErrStartTimeout
			}
		case <-ticker.C:
		}
	}
}

// Port returns the inspector port.
func (p *Process) Port() int {
	return p.port
}

// PID returns the process ID.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Discovery returns a discovery client for the inspector.
func (p *Process) Discovery() *discovery.Client {
	return p.discovery
}

// Targets lists the inspector's debug targets.
func (p *Process) Targets(ctx context.Context) ([]discovery.Target, error) {
	return p.discovery.List(ctx)
}

// Exited is closed when the process has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Close interrupts the process, kills it if it has not exited after a short
// grace period, and waits for it. It is safe to call more than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if p.cmd == nil || p.cmd.Process == nil {
			return
		}

		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			if !errors.Is(err, os.ErrProcessDone) {
				_ = p.cmd.Process.Kill()
			}
		}

		select {
		case <-p.exited:
		case <-time.After(killDelay):
			p.log.V(1).Info("Node did not exit on interrupt, killing", "pid", p.PID())
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	})
	return nil
}
