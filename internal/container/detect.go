package container

import (
	"errors"
	"os/exec"
)

// ErrNoBackend is returned when no container management tool is found.
var ErrNoBackend = errors.New("no container backend found (need incus or lxc)")

// Detect finds an available container management tool.
// Checks incus first, then lxc. Verifies the binary actually works
// by running `<tool> version`.
func Detect() (string, error) {
	for _, bin := range []string{"incus", "lxc"} {
		if _, err := exec.LookPath(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin, "version")
		if err := cmd.Run(); err != nil {
			continue
		}
		return bin, nil
	}
	return "", ErrNoBackend
}
