package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stagehand-ci/stagehand/internal/model"
)

func sampleReport() *model.RunReport {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.RunReport{
		RunID:    "run-20250301-120000-0042",
		Pipeline: "release",
		Success:  false,
		Stages: []model.StageResult{
			{
				Name:   "quality",
				Status: model.StatusSucceeded,
				Steps: []model.StepResult{
					{Name: "lint", Status: model.StatusSucceeded},
				},
				StartedAt:  start,
				FinishedAt: start.Add(2 * time.Second),
			},
			{
				Name:    "build",
				Status:  model.StatusFailed,
				Reason:  model.ReasonExecFailure,
				Message: "step compile failed: exit status 1",
				Steps: []model.StepResult{
					{Name: "compile", Status: model.StatusFailed, Reason: model.ReasonExecFailure, ExitCode: 1},
				},
			},
			{
				Name:   "publish",
				Status: model.StatusSkipped,
				Reason: model.ReasonDependencyFailed,
			},
		},
		StartedAt:  start,
		FinishedAt: start.Add(5 * time.Second),
	}
}

func TestRenderJSON(t *testing.T) {
	data, err := RenderJSON(sampleReport())
	require.NoError(t, err)

	var decoded model.RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "release", decoded.Pipeline)
	assert.False(t, decoded.Success)
	require.Len(t, decoded.Stages, 3)
	assert.Equal(t, model.ReasonDependencyFailed, decoded.Stages[2].Reason)
}

func TestWriteChoosesFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	report := sampleReport()

	jsonPath := filepath.Join(dir, "report.json")
	require.NoError(t, Write(report, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	yamlPath := filepath.Join(dir, "report.yaml")
	require.NoError(t, Write(report, yamlPath))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "release", decoded["pipeline"])
}

func TestWriteCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "report.json")
	require.NoError(t, Write(sampleReport(), path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestRunViewerRender(t *testing.T) {
	out := NewRunViewer(sampleReport()).Render()

	assert.Contains(t, out, "pipeline release")
	assert.Contains(t, out, "✓ quality [succeeded]")
	assert.Contains(t, out, "✗ build [failed] (exec-failure)")
	assert.Contains(t, out, "↷ publish [skipped] (dependency-failed)")
	assert.Contains(t, out, "run failed")
}

func TestRunViewerTruncatesMessagesByRune(t *testing.T) {
	msg := strings.Repeat("ü", 80)
	report := &model.RunReport{
		Pipeline: "release",
		Stages: []model.StageResult{
			{
				Name:   "build",
				Status: model.StatusFailed,
				Steps: []model.StepResult{
					{Name: "compile", Status: model.StatusFailed, Message: msg},
				},
			},
		},
	}

	out := NewRunViewer(report).Render()
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, strings.Repeat("ü", 57)+"...")
}

func TestPipelineViewerViewDAG(t *testing.T) {
	pipeline := &model.Pipeline{
		Name: "release",
		Stages: []model.Stage{
			{Name: "quality", Steps: []model.Step{{Name: "lint", Run: "make lint"}}},
			{Name: "build", DependsOn: []string{"quality"}, Parallel: true, Steps: []model.Step{
				{Name: "image", Uses: "docker-build"},
			}},
		},
	}

	out := NewPipelineViewer(pipeline).ViewDAG()
	assert.Contains(t, out, "Pipeline release")
	assert.Contains(t, out, "build [parallel]")
	assert.Contains(t, out, "(depends on) quality")
	assert.Contains(t, out, "image | uses docker-build")
	assert.Contains(t, out, "Summary: 2 stages, 2 steps")
}

func TestPipelineViewerViewOrder(t *testing.T) {
	pipeline := &model.Pipeline{
		Name: "release",
		Stages: []model.Stage{
			{Name: "deploy", DependsOn: []string{"build"}},
			{Name: "quality"},
			{Name: "build", DependsOn: []string{"quality"}},
		},
	}

	out, err := NewPipelineViewer(pipeline).ViewOrder()
	require.NoError(t, err)
	assert.Contains(t, out, " 1. quality")
	assert.Contains(t, out, " 2. build (after quality)")
	assert.Contains(t, out, " 3. deploy (after build)")
}
