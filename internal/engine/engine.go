// Package engine drives a pipeline run: it walks the stage graph in
// dispatch rounds, runs ready stages on bounded workers, funnels results
// back through a single coordinating loop and decides overall pass/fail.
package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stagehand-ci/stagehand/internal/capability"
	"github.com/stagehand-ci/stagehand/internal/condition"
	"github.com/stagehand-ci/stagehand/internal/executor"
	"github.com/stagehand-ci/stagehand/internal/graph"
	"github.com/stagehand-ci/stagehand/internal/loader"
	"github.com/stagehand-ci/stagehand/internal/model"
	"github.com/stagehand-ci/stagehand/internal/secrets"
)

// maxCompositeDepth bounds sub-pipeline nesting.
const maxCompositeDepth = 8

// Options configures one run.
type Options struct {
	Inputs         map[string]string
	Secrets        secrets.Provider
	Concurrency    int // 0 means unbounded
	FailFast       bool
	WorkDir        string
	BaseDir        string // directory of the defining file, for sub-pipeline refs
	Stdout         io.Writer
	Stderr         io.Writer
	DefaultTimeout time.Duration
	DryRun         bool
	RunID          string
}

// Engine executes pipelines against an injected capability registry.
type Engine struct {
	registry *capability.Registry
	exec     *executor.Executor
	log      *zap.SugaredLogger
	depth    int
}

func New(registry *capability.Registry, log *zap.SugaredLogger) *Engine {
	return &Engine{
		registry: registry,
		exec:     executor.New(registry, log),
		log:      log,
	}
}

// stageOutcome is what a stage worker funnels back to the coordinator.
type stageOutcome struct {
	result model.StageResult
}

// Run executes the pipeline until every stage is terminal. The returned
// error is non-nil only for definition problems detected before any
// execution; execution failures are reported through the RunReport.
func (e *Engine) Run(ctx context.Context, pipeline *model.Pipeline, opts Options) (*model.RunReport, error) {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Secrets == nil {
		opts.Secrets = secrets.None{}
	}
	if opts.RunID == "" {
		opts.RunID = newRunID()
	}

	g, err := graph.Build(pipeline.Stages)
	if err != nil {
		return nil, &loader.DefinitionError{Err: err}
	}
	stageConds, stepConds, err := parseConditions(pipeline)
	if err != nil {
		return nil, &loader.DefinitionError{Err: err}
	}

	report := &model.RunReport{
		RunID:     opts.RunID,
		Pipeline:  pipeline.Name,
		StartedAt: time.Now(),
	}

	// Per-run progress state. Only the coordinating loop below touches it;
	// stage workers report back over the outcomes channel.
	results := make(map[string]*model.StageResult, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		results[stage.Name] = &model.StageResult{Name: stage.Name, Status: model.StatusPending}
	}
	satisfied := make(map[string]bool)
	blocked := make(map[string]bool)
	started := make(map[string]bool)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	outcomes := make(chan stageOutcome)
	running := 0

	markSkipped := func(name string, reason model.Reason, msg string) {
		res := results[name]
		res.Status = model.StatusSkipped
		res.Reason = reason
		res.Message = msg
		blocked[name] = true
	}

	// cascade marks every not-yet-started transitive dependent of name as
	// skipped. Dependents already running finish on their own.
	var cascade func(name string)
	cascade = func(name string) {
		for _, dependent := range g.Dependents(name) {
			if started[dependent] || results[dependent].Status.Terminal() {
				continue
			}
			markSkipped(dependent, model.ReasonDependencyFailed, fmt.Sprintf("dependency %s did not succeed", name))
			e.log.Infow("stage skipped", "stage", dependent, "reason", model.ReasonDependencyFailed, "cause", name)
			cascade(dependent)
		}
	}

	for !terminal(results) {
		progress := false

		if runCtx.Err() == nil {
			for _, name := range g.Ready(satisfied, blocked, started) {
				if runCtx.Err() != nil {
					break
				}
				if opts.Concurrency > 0 && running >= opts.Concurrency {
					break
				}
				stage, _ := pipeline.StageByName(name)
				res := results[name]

				if expr := stageConds[name]; expr != nil {
					ok, evalErr := expr.Eval(opts.Inputs)
					if evalErr != nil {
						res.Status = model.StatusFailed
						res.Reason = model.ReasonConditionError
						res.Message = evalErr.Error()
						blocked[name] = true
						progress = true
						e.log.Errorw("stage condition unresolved", "stage", name, "error", evalErr)
						cascade(name)
						if opts.FailFast {
							cancelRun()
						}
						continue
					}
					if !ok {
						res.Status = model.StatusSkipped
						res.Reason = model.ReasonConditionFalse
						// A gated-off stage is not a failed dependency.
						satisfied[name] = true
						progress = true
						e.log.Infow("stage skipped", "stage", name, "reason", model.ReasonConditionFalse)
						continue
					}
				}

				started[name] = true
				res.Status = model.StatusRunning
				running++
				progress = true
				e.log.Infow("stage started", "stage", name, "run", opts.RunID)
				go func(st model.Stage) {
					outcomes <- stageOutcome{result: e.runStage(runCtx, st, stepConds, opts)}
				}(*stage)
			}
		}

		if running > 0 {
			out := <-outcomes
			running--
			res := results[out.result.Name]
			*res = out.result
			e.log.Infow("stage finished", "stage", res.Name, "status", res.Status, "duration", res.Duration())

			switch res.Status {
			case model.StatusSucceeded:
				satisfied[res.Name] = true
			case model.StatusFailed:
				blocked[res.Name] = true
				cascade(res.Name)
				if opts.FailFast {
					cancelRun()
				}
			case model.StatusCancelled:
				blocked[res.Name] = true
				cascade(res.Name)
			default:
				blocked[res.Name] = true
				cascade(res.Name)
			}
			continue
		}

		if !progress {
			// Nothing running and nothing dispatchable: the remaining
			// pending stages are unreachable, either because the run was
			// cancelled or because their dependencies are blocked.
			reason := model.ReasonDependencyFailed
			msg := "dependencies did not succeed"
			if runCtx.Err() != nil {
				reason = model.ReasonCancelled
				msg = "run cancelled"
			}
			for _, stage := range pipeline.Stages {
				if !results[stage.Name].Status.Terminal() && !started[stage.Name] {
					markSkipped(stage.Name, reason, msg)
				}
			}
		}
	}

	report.FinishedAt = time.Now()
	report.Success = true
	for _, stage := range pipeline.Stages {
		res := results[stage.Name]
		if res.Status == model.StatusFailed {
			report.Success = false
		}
		report.Stages = append(report.Stages, *res)
	}
	e.log.Infow("run finished", "run", opts.RunID, "success", report.Success)
	return report, nil
}

// runStage executes the steps of one stage and folds their results into
// the stage status.
func (e *Engine) runStage(ctx context.Context, stage model.Stage, stepConds map[string]condition.Expr, opts Options) model.StageResult {
	result := model.StageResult{
		Name:      stage.Name,
		StartedAt: time.Now(),
	}

	if stage.Parallel {
		result.Steps = e.runStepsParallel(ctx, stage, stepConds, opts)
	} else {
		result.Steps = e.runStepsSequential(ctx, stage, stepConds, opts)
	}
	result.FinishedAt = time.Now()

	var failedStep, condErrStep, cancelledStep *model.StepResult
	for i := range result.Steps {
		step := stage.Steps[i]
		sr := &result.Steps[i]
		switch {
		// Steps skipped because the run was cancelled carry the cancelled
		// reason without the status; the stage is cancelled either way.
		case sr.Status == model.StatusCancelled || sr.Reason == model.ReasonCancelled:
			cancelledStep = sr
		case sr.Status == model.StatusFailed && !step.ContinueOnError:
			if failedStep == nil {
				failedStep = sr
			}
		case sr.Reason == model.ReasonConditionError:
			condErrStep = sr
		}
	}

	switch {
	case cancelledStep != nil:
		result.Status = model.StatusCancelled
		result.Reason = model.ReasonCancelled
		result.Message = fmt.Sprintf("step %s cancelled", cancelledStep.Name)
	case failedStep != nil:
		result.Status = model.StatusFailed
		result.Reason = failedStep.Reason
		result.Message = fmt.Sprintf("step %s failed: %s", failedStep.Name, failedStep.Message)
	case condErrStep != nil:
		result.Status = model.StatusFailed
		result.Reason = model.ReasonConditionError
		result.Message = fmt.Sprintf("step %s has an unresolvable condition: %s", condErrStep.Name, condErrStep.Message)
	default:
		result.Status = model.StatusSucceeded
	}
	return result
}

func (e *Engine) runStepsSequential(ctx context.Context, stage model.Stage, stepConds map[string]condition.Expr, opts Options) []model.StepResult {
	results := make([]model.StepResult, 0, len(stage.Steps))
	halted := false
	for _, step := range stage.Steps {
		if halted {
			results = append(results, model.StepResult{
				Name:    step.Name,
				Status:  model.StatusSkipped,
				Reason:  model.ReasonDependencyFailed,
				Message: "an earlier step in the stage failed",
			})
			continue
		}
		sr := e.runStep(ctx, stage, step, stepConds, opts)
		results = append(results, sr)
		if sr.Status == model.StatusCancelled || (sr.Status == model.StatusFailed && !step.ContinueOnError) {
			halted = true
		}
	}
	return results
}

func (e *Engine) runStepsParallel(ctx context.Context, stage model.Stage, stepConds map[string]condition.Expr, opts Options) []model.StepResult {
	results := make([]model.StepResult, len(stage.Steps))
	var wg sync.WaitGroup
	for i, step := range stage.Steps {
		wg.Add(1)
		go func(i int, step model.Step) {
			defer wg.Done()
			results[i] = e.runStep(ctx, stage, step, stepConds, opts)
		}(i, step)
	}
	wg.Wait()
	return results
}

// runStep gates one step on its condition and hands it to the executor,
// or to a child engine for sub-pipeline steps.
func (e *Engine) runStep(ctx context.Context, stage model.Stage, step model.Step, stepConds map[string]condition.Expr, opts Options) model.StepResult {
	if ctx.Err() != nil {
		return model.StepResult{
			Name:    step.Name,
			Status:  model.StatusSkipped,
			Reason:  model.ReasonCancelled,
			Message: "run cancelled",
		}
	}

	if expr := stepConds[stage.Name+"/"+step.Name]; expr != nil {
		ok, err := expr.Eval(opts.Inputs)
		if err != nil {
			// Fail closed but keep the error visible: the stage fails, the
			// rest of the run is untouched.
			e.log.Errorw("step condition unresolved", "stage", stage.Name, "step", step.Name, "error", err)
			return model.StepResult{
				Name:    step.Name,
				Status:  model.StatusSkipped,
				Reason:  model.ReasonConditionError,
				Message: err.Error(),
			}
		}
		if !ok {
			return model.StepResult{
				Name:   step.Name,
				Status: model.StatusSkipped,
				Reason: model.ReasonConditionFalse,
			}
		}
	}

	if step.Pipeline != "" {
		return e.runComposite(ctx, stage, step, opts)
	}

	return e.exec.Execute(ctx, step, executor.ExecContext{
		Stage:          stage.Name,
		Inputs:         opts.Inputs,
		Secrets:        opts.Secrets,
		WorkDir:        opts.WorkDir,
		Stdout:         opts.Stdout,
		Stderr:         opts.Stderr,
		DefaultTimeout: opts.DefaultTimeout,
		DryRun:         opts.DryRun,
	})
}

// runComposite runs a step that references a nested pipeline file. The
// child run shares the parent's cancellation signal and settings; its
// overall outcome becomes the step's status.
func (e *Engine) runComposite(ctx context.Context, stage model.Stage, step model.Step, opts Options) model.StepResult {
	result := model.StepResult{
		Name:      step.Name,
		StartedAt: time.Now(),
	}

	fail := func(reason model.Reason, msg string) model.StepResult {
		result.Status = model.StatusFailed
		result.Reason = reason
		result.Message = msg
		result.FinishedAt = time.Now()
		return result
	}

	if e.depth+1 >= maxCompositeDepth {
		return fail(model.ReasonConfigurationError, fmt.Sprintf("sub-pipeline nesting exceeds depth %d", maxCompositeDepth))
	}

	path := step.Pipeline
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.BaseDir, path)
	}
	sub, err := loader.Load(path)
	if err != nil {
		return fail(model.ReasonConfigurationError, err.Error())
	}

	child := New(e.registry, e.log)
	child.depth = e.depth + 1

	childOpts := opts
	childOpts.BaseDir = filepath.Dir(path)
	childOpts.RunID = opts.RunID + "/" + step.Name

	report, err := child.Run(ctx, sub, childOpts)
	if err != nil {
		return fail(model.ReasonConfigurationError, err.Error())
	}
	result.FinishedAt = time.Now()

	if report.Success {
		cancelled := false
		for _, sr := range report.Stages {
			if sr.Status == model.StatusCancelled || sr.Reason == model.ReasonCancelled {
				cancelled = true
				break
			}
		}
		if cancelled {
			result.Status = model.StatusCancelled
			result.Reason = model.ReasonCancelled
			result.Message = fmt.Sprintf("sub-pipeline %s cancelled", sub.Name)
		} else {
			result.Status = model.StatusSucceeded
		}
		return result
	}

	failedStages := 0
	for _, sr := range report.Stages {
		if sr.Status == model.StatusFailed {
			failedStages++
		}
	}
	return fail(model.ReasonExecFailure, fmt.Sprintf("sub-pipeline %s failed: %d of %d stages failed", sub.Name, failedStages, len(report.Stages)))
}

func parseConditions(pipeline *model.Pipeline) (map[string]condition.Expr, map[string]condition.Expr, error) {
	stageConds := make(map[string]condition.Expr)
	stepConds := make(map[string]condition.Expr)
	for _, stage := range pipeline.Stages {
		if stage.If != "" {
			expr, err := condition.Parse(stage.If)
			if err != nil {
				return nil, nil, fmt.Errorf("stage %s: %w", stage.Name, err)
			}
			stageConds[stage.Name] = expr
		}
		for _, step := range stage.Steps {
			if step.If == "" {
				continue
			}
			expr, err := condition.Parse(step.If)
			if err != nil {
				return nil, nil, fmt.Errorf("step %s/%s: %w", stage.Name, step.Name, err)
			}
			stepConds[stage.Name+"/"+step.Name] = expr
		}
	}
	return stageConds, stepConds, nil
}

func terminal(results map[string]*model.StageResult) bool {
	for _, res := range results {
		if !res.Status.Terminal() {
			return false
		}
	}
	return true
}

func newRunID() string {
	return fmt.Sprintf("run-%s-%04d", time.Now().UTC().Format("20060102-150405"), rand.Intn(10000))
}
