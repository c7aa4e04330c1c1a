package capability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ShellName is the registry name the engine resolves `run:` steps against.
const ShellName = "shell"

// Shell runs a step's command line through `sh -c`. Declared env values
// and resolved secrets are appended to the inherited process environment.
type Shell struct {
	// GracePeriod bounds how long a command may keep running after its
	// context is cancelled before it is killed.
	GracePeriod time.Duration
}

func (s *Shell) Invoke(ctx context.Context, req Request) (Result, error) {
	script := req.Args["run"]
	if script == "" {
		return Result{}, fmt.Errorf("shell capability requires a run argument")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = req.WorkDir
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	cmd.Env = mergedEnv(req)
	if s.GracePeriod > 0 {
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
		cmd.WaitDelay = s.GracePeriod
	}

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	return Result{}, nil
}

func mergedEnv(req Request) []string {
	env := os.Environ()
	for k, v := range req.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range req.Secrets {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
