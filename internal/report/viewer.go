package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/stagehand-ci/stagehand/internal/graph"
	"github.com/stagehand-ci/stagehand/internal/model"
)

// RunViewer provides a human-readable tree view of a finished run.
type RunViewer struct {
	report *model.RunReport
}

func NewRunViewer(report *model.RunReport) *RunViewer {
	return &RunViewer{report: report}
}

// truncate shortens s to at most limit runes, never splitting a rune.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func statusGlyph(status model.Status) string {
	switch status {
	case model.StatusSucceeded:
		return "✓"
	case model.StatusFailed:
		return "✗"
	case model.StatusSkipped:
		return "↷"
	case model.StatusCancelled:
		return "⊘"
	default:
		return "·"
	}
}

// Render returns the per-stage, per-step result tree.
func (v *RunViewer) Render() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run %s — pipeline %s\n", v.report.RunID, v.report.Pipeline))
	sb.WriteString("═══════════════════════════════════════════════════════════\n")

	for i := range v.report.Stages {
		stage := &v.report.Stages[i]
		isLast := i == len(v.report.Stages)-1

		prefix := "├─ "
		connector := "│  "
		if isLast {
			prefix = "└─ "
			connector = "   "
		}

		line := fmt.Sprintf("%s%s %s [%s]", prefix, statusGlyph(stage.Status), stage.Name, stage.Status)
		if stage.Reason != "" {
			line += fmt.Sprintf(" (%s)", stage.Reason)
		}
		if d := stage.Duration(); d > 0 {
			line += " " + d.Round(time.Millisecond).String()
		}
		sb.WriteString(line + "\n")

		for j := range stage.Steps {
			step := &stage.Steps[j]
			stepPrefix := connector + "├─ "
			if j == len(stage.Steps)-1 {
				stepPrefix = connector + "└─ "
			}

			stepLine := fmt.Sprintf("%s%s %s [%s]", stepPrefix, statusGlyph(step.Status), step.Name, step.Status)
			if step.Reason != "" {
				stepLine += fmt.Sprintf(" (%s)", step.Reason)
			}
			if step.Message != "" {
				stepLine += " | " + truncate(step.Message, 60)
			}
			sb.WriteString(stepLine + "\n")
		}
	}

	sb.WriteString("═══════════════════════════════════════════════════════════\n")
	verdict := "succeeded"
	if !v.report.Success {
		verdict = "failed"
	}
	sb.WriteString(fmt.Sprintf("Summary: %d stages, run %s, took %s\n",
		len(v.report.Stages), verdict, v.report.FinishedAt.Sub(v.report.StartedAt).Round(time.Millisecond).String()))
	return sb.String()
}

// PipelineViewer provides human-readable views of a pipeline definition.
type PipelineViewer struct {
	pipeline *model.Pipeline
}

func NewPipelineViewer(pipeline *model.Pipeline) *PipelineViewer {
	return &PipelineViewer{pipeline: pipeline}
}

// ViewDAG returns a tree view of stages, their dependencies and steps.
func (pv *PipelineViewer) ViewDAG() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Pipeline %s\n", pv.pipeline.Name))
	sb.WriteString("═══════════════════════════════════════════════════════════\n")

	stages := pv.pipeline.Stages
	for i, stage := range stages {
		isLast := i == len(stages)-1

		prefix := "├─ "
		connector := "│  "
		if isLast {
			prefix = "└─ "
			connector = "   "
		}

		line := prefix + stage.Name
		if stage.Parallel {
			line += " [parallel]"
		}
		if stage.If != "" {
			line += fmt.Sprintf(" if(%s)", stage.If)
		}
		sb.WriteString(line + "\n")

		for j, dep := range stage.DependsOn {
			depPrefix := connector + "├─ "
			if j == len(stage.DependsOn)-1 && len(stage.Steps) == 0 {
				depPrefix = connector + "└─ "
			}
			sb.WriteString(fmt.Sprintf("%s(depends on) %s\n", depPrefix, dep))
		}

		for j, step := range stage.Steps {
			stepPrefix := connector + "├─ "
			if j == len(stage.Steps)-1 {
				stepPrefix = connector + "└─ "
			}

			stepLine := stepPrefix + step.Name
			switch {
			case step.Run != "":
				stepLine += " | " + truncate(step.Run, 60)
			case step.Uses != "":
				stepLine += " | uses " + step.Uses
			case step.Pipeline != "":
				stepLine += " | pipeline " + step.Pipeline
			}
			if step.If != "" {
				stepLine += fmt.Sprintf(" if(%s)", step.If)
			}
			sb.WriteString(stepLine + "\n")
		}
	}

	totalSteps := 0
	for _, stage := range stages {
		totalSteps += len(stage.Steps)
	}
	sb.WriteString("═══════════════════════════════════════════════════════════\n")
	sb.WriteString(fmt.Sprintf("Summary: %d stages, %d steps\n", len(stages), totalSteps))
	return sb.String()
}

// ViewOrder returns the deterministic execution order of the stages.
func (pv *PipelineViewer) ViewOrder() (string, error) {
	g, err := graph.Build(pv.pipeline.Stages)
	if err != nil {
		return "", err
	}
	order, err := g.TopoOrder()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Execution order\n")
	for i, name := range order {
		deps := g.DependsOn(name)
		if len(deps) == 0 {
			sb.WriteString(fmt.Sprintf("%2d. %s\n", i+1, name))
		} else {
			sb.WriteString(fmt.Sprintf("%2d. %s (after %s)\n", i+1, name, strings.Join(deps, ", ")))
		}
	}
	return sb.String(), nil
}
