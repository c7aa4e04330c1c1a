package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehand-ci/stagehand/internal/capability"
	"github.com/stagehand-ci/stagehand/internal/config"
	"github.com/stagehand-ci/stagehand/internal/engine"
	"github.com/stagehand-ci/stagehand/internal/loader"
	"github.com/stagehand-ci/stagehand/internal/report"
	"github.com/stagehand-ci/stagehand/internal/secrets"
)

var (
	runInputs      []string
	runConcurrency int
	runFailFast    bool
	runSecretsFile string
	runReportFile  string
	runWorkDir     string
	runDryRun      bool
	runTimeout     string
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline-file>",
	Short: "Execute a pipeline definition",
	Long:  "Load a pipeline file, validate it and execute its stages in dependency order.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(args[0])
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Input value as key=value (repeatable)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Max concurrently running stages (0 uses the config default)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Cancel the run on the first stage failure")
	runCmd.Flags().StringVar(&runSecretsFile, "secrets", "", "Path to a YAML secrets file")
	runCmd.Flags().StringVarP(&runReportFile, "report", "r", "", "Write the run report to this file (json or yaml)")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "Base working directory for commands")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Render steps without invoking capabilities")
	runCmd.Flags().StringVar(&runTimeout, "timeout", "", "Default per-step timeout (e.g. 10m)")
}

func runPipeline(path string) error {
	pipeline, err := loader.Load(path)
	if err != nil {
		return err
	}

	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}

	provider, err := buildSecretsProvider()
	if err != nil {
		return err
	}

	grace, err := appCfg.GracePeriodDuration()
	if err != nil {
		return fmt.Errorf("invalid grace_period in config: %w", err)
	}

	registry := capability.NewRegistry()
	if err := registry.Register(capability.ShellName, &capability.Shell{GracePeriod: grace}); err != nil {
		return err
	}
	if err := registry.Register("process", &capability.Process{GracePeriod: grace}); err != nil {
		return err
	}

	concurrency := runConcurrency
	if concurrency == 0 {
		concurrency = appCfg.Concurrency
	}

	var timeout time.Duration
	if runTimeout != "" {
		timeout, err = time.ParseDuration(runTimeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
	} else if timeout, err = appCfg.StepTimeoutDuration(); err != nil {
		return fmt.Errorf("invalid step_timeout in config: %w", err)
	}

	workDir := runWorkDir
	if workDir == "" {
		workDir = appCfg.WorkDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runDryRun {
		fmt.Println("□ Dry-run mode enabled: steps are rendered, not executed.")
	}

	eng := engine.New(registry, log)
	result, err := eng.Run(ctx, pipeline, engine.Options{
		Inputs:         inputs,
		Secrets:        provider,
		Concurrency:    concurrency,
		FailFast:       runFailFast,
		WorkDir:        workDir,
		BaseDir:        filepath.Dir(path),
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		DefaultTimeout: timeout,
		DryRun:         runDryRun,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(report.NewRunViewer(result).Render())

	if runReportFile != "" {
		if err := report.Write(result, runReportFile); err != nil {
			return err
		}
		fmt.Printf("✓ Report saved to: %s\n", runReportFile)
	}

	if !result.Success {
		return fmt.Errorf("run %s failed", result.RunID)
	}
	return nil
}

func parseInputs(raw []string) (map[string]string, error) {
	inputs := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", kv)
		}
		inputs[key] = value
	}
	return inputs, nil
}

// buildSecretsProvider layers the optional secrets file over
// STAGEHAND_SECRET_ environment variables.
func buildSecretsProvider() (secrets.Provider, error) {
	chain := secrets.Chain{secrets.Env{Prefix: config.EnvPrefix + "_SECRET_"}}
	if runSecretsFile != "" {
		static, err := secrets.LoadFile(runSecretsFile)
		if err != nil {
			return nil, err
		}
		chain = append(secrets.Chain{static}, chain...)
	}
	return chain, nil
}
