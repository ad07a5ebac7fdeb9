// Package debuggee locates a Node binary and runs scripts under its
// inspector so a Bridge has something to attach to.
package debuggee

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
)

// EnvNode names the environment variable that overrides node discovery.
const EnvNode = "CDPBRIDGE_NODE"

// ErrNodeNotFound is returned when no node binary can be located.
var ErrNodeNotFound = errors.New("node not found")

// nodePaths returns the candidates searched for node on the current platform.
func nodePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"node",
			"/opt/homebrew/bin/node",
			"/usr/local/bin/node",
		}
	case "linux":
		return []string{
			"node",
			"nodejs",
			"/usr/local/bin/node",
			"/usr/bin/node",
			"/usr/bin/nodejs",
		}
	case "windows":
		return []string{
			"node.exe",
			`C:\Program Files\nodejs\node.exe`,
		}
	default:
		return []string{"node"}
	}
}

// FindNode returns the path of a node executable. CDPBRIDGE_NODE wins when
// set; an invalid value is an error rather than a fallback to PATH.
func FindNode() (string, error) {
	if envPath := os.Getenv(EnvNode); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", ErrNodeNotFound
	}

	for _, path := range nodePaths() {
		found, err := exec.LookPath(path)
		if err == nil {
			return found, nil
		}
	}

	return "", ErrNodeNotFound
}
