package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stagehand-ci/stagehand/internal/config"
	"github.com/stagehand-ci/stagehand/internal/logger"
)

var (
	cfgFile   string
	debugMode bool
	logFormat string

	appCfg config.AppConfig
	log    *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:          "stagehand",
	Short:        "Config-driven CI pipeline orchestrator",
	Long:         "stagehand executes declarative pipeline definitions: stages with dependencies form a DAG, steps are gated by conditions and dispatched to capability implementations.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		appCfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if debugMode {
			appCfg.Debug = true
		}
		if logFormat != "" {
			appCfg.LogFormat = logFormat
		}
		log, err = logger.Init(logger.Config{Debug: appCfg.Debug, Format: appCfg.LogFormat})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default stagehand.yaml in . or ~/.config/stagehand)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (human/json)")

	registerRunCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerGraphCommand(rootCmd)
	registerInspectCommand(rootCmd)
}
