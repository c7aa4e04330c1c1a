// Package report emits run summaries: machine-readable files and
// human-readable views of run results and pipeline definitions.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/stagehand-ci/stagehand/internal/model"
)

// RenderJSON renders a run report as indented JSON.
func RenderJSON(report *model.RunReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// RenderYAML renders a run report as YAML.
func RenderYAML(report *model.RunReport) ([]byte, error) {
	return yaml.Marshal(report)
}

// Write writes a run report to file, choosing JSON or YAML from the
// extension. JSON is the default.
func Write(report *model.RunReport, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = RenderYAML(report)
	default:
		data, err = RenderJSON(report)
	}
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
