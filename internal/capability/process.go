package capability

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Process runs a binary directly, without a shell. The command comes from
// the step's `with:` map: `command` is the binary and `args` an optional
// whitespace-separated argument list.
type Process struct {
	GracePeriod time.Duration
}

func (p *Process) Invoke(ctx context.Context, req Request) (Result, error) {
	bin := req.Args["command"]
	if bin == "" {
		return Result{}, fmt.Errorf("process capability requires a command argument")
	}
	var args []string
	if raw := req.Args["args"]; raw != "" {
		args = strings.Fields(raw)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = req.WorkDir
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	cmd.Env = mergedEnv(req)
	if p.GracePeriod > 0 {
		cmd.WaitDelay = p.GracePeriod
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
