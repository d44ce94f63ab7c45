package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"penguinoracle/config"
	"penguinoracle/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "penguins",
		Short:         "Predict Palmer penguin body mass from a trained model",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default: ./config.yaml or ../config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(newPredictCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

// load reads the config and builds the logger shared by every command.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log.Logging())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
