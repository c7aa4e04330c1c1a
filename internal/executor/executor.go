// Package executor runs single atomic steps: it renders step templates,
// resolves secrets, enforces timeouts and shapes results. The actual side
// effects are delegated to the injected capability registry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/stagehand-ci/stagehand/internal/capability"
	"github.com/stagehand-ci/stagehand/internal/model"
	"github.com/stagehand-ci/stagehand/internal/secrets"
)

// ExecContext bundles what a single step execution may draw on.
type ExecContext struct {
	Stage          string
	Inputs         map[string]string
	Secrets        secrets.Provider
	WorkDir        string
	Stdout         io.Writer
	Stderr         io.Writer
	DefaultTimeout time.Duration
	DryRun         bool
}

// Executor turns one step into one RunResult.
type Executor struct {
	registry *capability.Registry
	log      *zap.SugaredLogger

	mu        sync.Mutex
	templates map[string]*template.Template
}

func New(registry *capability.Registry, log *zap.SugaredLogger) *Executor {
	return &Executor{
		registry:  registry,
		log:       log,
		templates: make(map[string]*template.Template),
	}
}

// Execute runs one step whose condition has already passed. Composite
// steps are handled by the engine and never reach the executor.
func (e *Executor) Execute(ctx context.Context, step model.Step, ec ExecContext) model.StepResult {
	result := model.StepResult{
		Name:      step.Name,
		StartedAt: time.Now(),
	}

	capName, args, err := e.resolveAction(step, ec)
	if err != nil {
		return e.fail(result, model.ReasonConfigurationError, err)
	}

	impl, ok := e.registry.Lookup(capName)
	if !ok {
		err := fmt.Errorf("capability not registered: %s", capName)
		return e.fail(result, model.ReasonConfigurationError, err)
	}

	secretValues, err := e.resolveSecrets(step, ec)
	if err != nil {
		return e.fail(result, model.ReasonConfigurationError, err)
	}

	env, err := e.renderMap(ec.Stage, step.Name, "env", step.Env, ec.Inputs)
	if err != nil {
		return e.fail(result, model.ReasonConfigurationError, err)
	}

	if ec.DryRun {
		fmt.Fprintf(ec.Stdout, "  - %s/%s would invoke %s %v\n", ec.Stage, step.Name, capName, args)
		result.Status = model.StatusSucceeded
		result.FinishedAt = time.Now()
		return result
	}

	timeout := ec.DefaultTimeout
	if step.Timeout != "" {
		d, err := time.ParseDuration(step.Timeout)
		if err != nil {
			return e.fail(result, model.ReasonConfigurationError, fmt.Errorf("invalid timeout %q: %w", step.Timeout, err))
		}
		timeout = d
	}

	stepCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e.log.Debugw("invoking capability", "stage", ec.Stage, "step", step.Name, "capability", capName)
	res, invokeErr := impl.Invoke(stepCtx, capability.Request{
		Args:    args,
		Env:     env,
		Secrets: secretValues,
		WorkDir: ec.WorkDir,
		Stdout:  ec.Stdout,
		Stderr:  ec.Stderr,
	})
	result.FinishedAt = time.Now()
	result.ExitCode = res.ExitCode

	switch {
	case ctx.Err() != nil:
		result.Status = model.StatusCancelled
		result.Reason = model.ReasonCancelled
		result.Message = "run cancelled"
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		result.Status = model.StatusFailed
		result.Reason = model.ReasonTimeout
		result.Message = fmt.Sprintf("step exceeded timeout %s", timeout)
	case invokeErr != nil:
		result.Status = model.StatusFailed
		result.Reason = model.ReasonExecFailure
		result.Message = invokeErr.Error()
	case res.ExitCode != 0:
		result.Status = model.StatusFailed
		result.Reason = model.ReasonExecFailure
		result.Message = fmt.Sprintf("exit status %d", res.ExitCode)
	default:
		result.Status = model.StatusSucceeded
	}
	return result
}

// resolveAction maps the step's action form onto a capability name and its
// rendered arguments.
func (e *Executor) resolveAction(step model.Step, ec ExecContext) (string, map[string]string, error) {
	switch {
	case step.Run != "":
		run, err := e.render(ec.Stage, step.Name, "run", step.Run, ec.Inputs)
		if err != nil {
			return "", nil, err
		}
		return capability.ShellName, map[string]string{"run": run}, nil
	case step.Uses != "":
		args, err := e.renderMap(ec.Stage, step.Name, "with", step.With, ec.Inputs)
		if err != nil {
			return "", nil, err
		}
		return step.Uses, args, nil
	default:
		return "", nil, fmt.Errorf("step %s declares no action", step.Name)
	}
}

func (e *Executor) resolveSecrets(step model.Step, ec ExecContext) (map[string]string, error) {
	if len(step.Secrets) == 0 {
		return nil, nil
	}
	provider := ec.Secrets
	if provider == nil {
		provider = secrets.None{}
	}
	values := make(map[string]string, len(step.Secrets))
	for _, name := range step.Secrets {
		v, ok := provider.Get(name)
		if !ok {
			return nil, fmt.Errorf("secret not available: %s", name)
		}
		key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
		values[key] = v
	}
	return values, nil
}

// render expands {{.input}} references against the run's input map.
// Templates are cached so identical steps are parsed once per run.
func (e *Executor) render(stage, step, field, text string, inputs map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	// Cached by template text: an executor may be reused across pipelines
	// whose stage and step names collide.
	e.mu.Lock()
	tmpl, exists := e.templates[text]
	e.mu.Unlock()
	if !exists {
		var err error
		tmpl, err = template.New(field).Option("missingkey=error").Parse(text)
		if err != nil {
			return "", fmt.Errorf("invalid template in step %s: %w", step, err)
		}
		e.mu.Lock()
		e.templates[text] = tmpl
		e.mu.Unlock()
	}

	context := make(map[string]interface{}, len(inputs)+1)
	for k, v := range inputs {
		context[k] = v
	}
	context["Stage"] = stage

	var buf strings.Builder
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("failed to render %s of step %s: %w", field, step, err)
	}
	return buf.String(), nil
}

func (e *Executor) renderMap(stage, step, field string, raw, inputs map[string]string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		rendered, err := e.render(stage, step, field+"."+k, v, inputs)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func (e *Executor) fail(result model.StepResult, reason model.Reason, err error) model.StepResult {
	e.log.Debugw("step failed before invocation", "step", result.Name, "reason", reason, "error", err)
	result.Status = model.StatusFailed
	result.Reason = reason
	result.Message = err.Error()
	result.FinishedAt = time.Now()
	return result
}
