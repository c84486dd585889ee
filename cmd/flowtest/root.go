package main

import (
	"github.com/spf13/cobra"

	logginginfra "github.com/alexisbeaulieu97/flowtest/internal/infrastructure/logging"
)

type rootFlags struct {
	verbose bool
}

func newRootCmd(app *AppContext) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "flowtest",
		Short:         "flowtest runs declarative YAML HTTP flow test suites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if flags.verbose {
				level = "debug"
			}
			logger, err := logginginfra.New(logginginfra.Options{
				Level:     level,
				Component: "cli",
				Layer:     "infrastructure",
			})
			if err != nil {
				return err
			}
			app.Activate(logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newRunCmd(flags, app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
