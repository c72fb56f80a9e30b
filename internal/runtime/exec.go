package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Output captures the result of an entrypoint execution.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes the runtime entrypoint.
type Runner struct {
	// Stdout and Stderr can be set for testing; defaults to os.Stdout/os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
}

// Run executes the entrypoint of h with args. The child inherits the current
// environment plus XWALK_RUNTIME_ROOT, XWALK_RUNTIME_VERSION and the
// variables from the runtime's env file. A non-zero exit is reported in
// Output.ExitCode, not as an error.
func (r *Runner) Run(ctx context.Context, h *Handle, args []string) (*Output, error) {
	if h == nil {
		return nil, errors.New("runtime not initialized")
	}

	cmd := exec.CommandContext(ctx, h.Entrypoint, args...)
	cmd.Dir = r.Dir
	cmd.Env = buildEnv(os.Environ(), h)

	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := r.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(stdout, &stdoutBuf)
	cmd.Stderr = io.MultiWriter(stderr, &stderrBuf)

	err := cmd.Run()

	output := &Output{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			output.ExitCode = exitErr.ExitCode()
			return output, nil
		}
		return output, fmt.Errorf("executing runtime entrypoint: %w", err)
	}
	return output, nil
}

func buildEnv(base []string, h *Handle) []string {
	env := append([]string(nil), base...)
	env = setEnv(env, "XWALK_RUNTIME_ROOT", h.Root)
	env = setEnv(env, "XWALK_RUNTIME_VERSION", h.Version)

	keys := make([]string, 0, len(h.Env))
	for k := range h.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = setEnv(env, k, h.Env[k])
	}
	return env
}

// setEnv sets or replaces an environment variable in the env slice.
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
