package app

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

// NewRootCmd wires the airtank command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "airtank",
		Short:         "Simulated bottle-rocket air tank with HTTP, MQTT and Modbus controllers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			if opts.logJSON {
				log.SetFormatter(&log.JSONFormatter{})
			}
			log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to config file (.yaml/.yml/.json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit JSON logs")

	cmd.AddCommand(
		newServeCmd(opts),
		newBlowdownCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
