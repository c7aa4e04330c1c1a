package loader

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ci/stagehand/internal/graph"
)

const validPipeline = `name: release
stages:
  - name: quality
    steps:
      - name: lint
        run: make lint
      - name: vet
        run: make vet
  - name: build
    dependsOn: [quality]
    parallel: true
    steps:
      - name: binary
        run: make build
      - name: image
        uses: docker-build
        with:
          tag: "{{.version}}"
        timeout: 10m
  - name: deploy
    if: env == 'prod'
    dependsOn: [build]
    steps:
      - name: ship
        uses: deploy
        secrets: [deploy-token]
        continueOnError: true
`

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	pipeline, err := Load(writePipeline(t, validPipeline))
	require.NoError(t, err)

	assert.Equal(t, "release", pipeline.Name)
	require.Len(t, pipeline.Stages, 3)

	build, ok := pipeline.StageByName("build")
	require.True(t, ok)
	assert.Equal(t, []string{"quality"}, build.DependsOn)
	assert.True(t, build.Parallel)
	require.Len(t, build.Steps, 2)
	assert.Equal(t, "docker-build", build.Steps[1].Uses)
	assert.Equal(t, "10m", build.Steps[1].Timeout)

	deploy, ok := pipeline.StageByName("deploy")
	require.True(t, ok)
	assert.Equal(t, "env == 'prod'", deploy.If)
	assert.Equal(t, []string{"deploy-token"}, deploy.Steps[0].Secrets)
	assert.True(t, deploy.Steps[0].ContinueOnError)
}

func TestParseConcurrent(t *testing.T) {
	// Parallel stage workers load composite sub-pipelines concurrently, so
	// parsing (and the one-time schema compile behind it) must be safe from
	// many goroutines at once.
	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = Parse([]byte(validPipeline))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var defErr *DefinitionError
	assert.False(t, errors.As(err, &defErr), "an unreadable file is not a definition problem")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("name: [unclosed"))
	require.Error(t, err)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    retries: 3
    steps:
      - name: compile
        run: make
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestParseRejectsMissingStages(t *testing.T) {
	_, err := Parse([]byte("name: ci\n"))
	require.Error(t, err)
}

func TestParseRejectsBadStageName(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: "-leading-dash"
    steps:
      - name: compile
        run: make
`))
	require.Error(t, err)
}

func TestParseRejectsDuplicateStage(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    steps:
      - name: compile
        run: make
  - name: build
    steps:
      - name: compile
        run: make
`))
	require.ErrorIs(t, err, graph.ErrDuplicateStage)
}

func TestParseRejectsUnknownDependency(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    dependsOn: [nonexistent]
    steps:
      - name: compile
        run: make
`))
	require.ErrorIs(t, err, graph.ErrUnknownDependency)
}

func TestParseRejectsCycle(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: a
    dependsOn: [b]
    steps:
      - name: s
        run: "true"
  - name: b
    dependsOn: [a]
    steps:
      - name: s
        run: "true"
`))
	require.ErrorIs(t, err, graph.ErrCycle)
}

func TestParseRejectsBadCondition(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    if: "env =="
    steps:
      - name: compile
        run: make
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build")
}

func TestParseRejectsDuplicateStepNames(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    steps:
      - name: compile
        run: make
      - name: compile
        run: make again
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step name")
}

func TestParseRejectsAmbiguousAction(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    steps:
      - name: compile
        run: make
        uses: docker-build
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}

func TestParseRejectsActionlessStep(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    steps:
      - name: compile
`))
	require.Error(t, err)
}

func TestParseRejectsWithWithoutUses(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    steps:
      - name: compile
        run: make
        with:
          target: all
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "with requires uses")
}

func TestParseRejectsBadTimeout(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: build
    steps:
      - name: compile
        run: make
        timeout: soonish
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestParseRejectsTimeoutOnSubPipeline(t *testing.T) {
	_, err := Parse([]byte(`name: ci
stages:
  - name: package
    steps:
      - name: nested
        pipeline: sub.yaml
        timeout: 5m
`))
	require.Error(t, err)
}

func TestLoadChecksSubPipelineExists(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(main, []byte(`name: ci
stages:
  - name: package
    steps:
      - name: nested
        pipeline: sub.yaml
`), 0644))

	_, err := Load(main)
	require.Error(t, err)

	var defErr *DefinitionError
	require.True(t, errors.As(err, &defErr))
	assert.Contains(t, err.Error(), "sub.yaml")

	// The same definition loads once the referenced file exists.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub.yaml"), []byte(`name: sub
stages:
  - name: bundle
    steps:
      - name: tar
        run: tar -czf out.tgz .
`), 0644))

	_, err = Load(main)
	require.NoError(t, err)
}

func TestLoadWrapsDefinitionError(t *testing.T) {
	path := writePipeline(t, `name: ci
stages:
  - name: a
    dependsOn: [a]
    steps:
      - name: s
        run: "true"
`)

	_, err := Load(path)
	require.Error(t, err)

	var defErr *DefinitionError
	require.True(t, errors.As(err, &defErr))
	assert.Equal(t, path, defErr.Path)
	assert.ErrorIs(t, err, graph.ErrCycle)
}
