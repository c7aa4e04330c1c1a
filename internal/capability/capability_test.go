package capability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	noop := Func(func(ctx context.Context, req Request) (Result, error) {
		return Result{}, nil
	})

	require.NoError(t, reg.Register("lint", noop))
	require.NoError(t, reg.Register("deploy", noop))
	require.Error(t, reg.Register("lint", noop), "duplicate names are rejected")
	require.Error(t, reg.Register("", noop))

	_, ok := reg.Lookup("lint")
	assert.True(t, ok)
	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)

	assert.Equal(t, []string{"deploy", "lint"}, reg.List())
}

func TestShellInvoke(t *testing.T) {
	sh := &Shell{}
	var stdout bytes.Buffer

	res, err := sh.Invoke(context.Background(), Request{
		Args:   map[string]string{"run": "echo hello"},
		Stdout: &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", stdout.String())
}

func TestShellExitCode(t *testing.T) {
	sh := &Shell{}

	res, err := sh.Invoke(context.Background(), Request{
		Args: map[string]string{"run": "exit 3"},
	})
	require.NoError(t, err, "a non-zero exit is a result, not an invocation error")
	assert.Equal(t, 3, res.ExitCode)
}

func TestShellMissingRunArg(t *testing.T) {
	sh := &Shell{}
	_, err := sh.Invoke(context.Background(), Request{})
	require.Error(t, err)
}

func TestShellEnvAndSecrets(t *testing.T) {
	sh := &Shell{}
	var stdout bytes.Buffer

	res, err := sh.Invoke(context.Background(), Request{
		Args:    map[string]string{"run": `echo "$GREETING:$DEPLOY_TOKEN"`},
		Env:     map[string]string{"GREETING": "hi"},
		Secrets: map[string]string{"DEPLOY_TOKEN": "s3cret"},
		Stdout:  &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi:s3cret\n", stdout.String())
}

func TestShellCancellation(t *testing.T) {
	sh := &Shell{GracePeriod: 100 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := sh.Invoke(ctx, Request{
		Args: map[string]string{"run": "sleep 10"},
	})
	assert.Less(t, time.Since(start), 5*time.Second)
	if err == nil {
		assert.NotEqual(t, 0, res.ExitCode)
	}
}

func TestProcessInvoke(t *testing.T) {
	p := &Process{}
	var stdout bytes.Buffer

	res, err := p.Invoke(context.Background(), Request{
		Args:   map[string]string{"command": "echo", "args": "a b"},
		Stdout: &stdout,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "a b", strings.TrimSpace(stdout.String()))
}

func TestProcessMissingCommand(t *testing.T) {
	p := &Process{}
	_, err := p.Invoke(context.Background(), Request{})
	require.Error(t, err)
}
