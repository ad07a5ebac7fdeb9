package debuggee

import (
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
)

// Host is the interface the inspector binds to.
const Host = "127.0.0.1"

// LaunchOptions configures a debuggee process.
type LaunchOptions struct {
	// Script is the entry point passed to node.
	Script string

	// Port for the inspector. If 0, a free port is picked.
	Port int

	// Brk pauses the script before its first line (--inspect-brk) until a
	// debugger sends Runtime.runIfWaitingForDebugger.
	Brk bool

	// Args are passed to the script after its path.
	Args []string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// Stdout and Stderr receive the process output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// buildArgs constructs the node command line.
func buildArgs(opts LaunchOptions) []string {
	flag := "--inspect"
	if opts.Brk {
		flag = "--inspect-brk"
	}

	args := []string{
		fmt.Sprintf("%s=%s", flag, net.JoinHostPort(Host, strconv.Itoa(opts.Port))),
	}
	if opts.Script != "" {
		args = append(args, opts.Script)
	}
	return append(args, opts.Args...)
}

// findAvailablePort asks the OS for a free TCP port on Host.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(Host, "0"))
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

// spawnProcess starts node without waiting for it to exit.
func spawnProcess(binPath string, opts LaunchOptions) (*exec.Cmd, error) {
	cmd := exec.Command(binPath, buildArgs(opts)...)
	cmd.Dir = opts.Dir
	cmd.Stdin = nil
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return cmd, nil
}
