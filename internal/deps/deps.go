package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotConfigured is returned by Resolve for a blank command.
var ErrNotConfigured = errors.New("command not configured")

// Requirement names an external program and what it is used for.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after lookup. Path holds the resolved executable
// when Available is true; Detail explains the failure otherwise.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Resolve looks command up on PATH, or checks it directly when it contains a
// separator, and returns the executable that would be run.
func Resolve(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", ErrNotConfigured
	}
	path, err := exec.LookPath(command)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("binary %q not found on PATH", command)
		}
		return "", fmt.Errorf("binary %q is not usable: %w", command, err)
	}
	return path, nil
}

// CheckBinaries resolves every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		path, err := Resolve(req.Command)
		if err != nil {
			status.Detail = err.Error()
		} else {
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}
