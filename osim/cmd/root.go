// Package cmd provides the command-line interface of osim.
package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envBindings lists the flags whose default can come from the environment.
var envBindings = map[string]string{
	"frames":     "OSIM_FRAMES",
	"page-size":  "OSIM_PAGE_SIZE",
	"speed":      "OSIM_SPEED",
	"inactivity": "OSIM_INACTIVITY",
	"disk-delay": "OSIM_DISK_DELAY",
	"seed":       "OSIM_SEED",
}

// newRootCmd creates the osim command with all its subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "osim",
		Short: "osim simulates the lifecycle and the memory of processes.",
		Long: `osim simulates processes that move through the New, Ready, ` +
			`Running, Waiting and Terminated states while sharing a small ` +
			`physical memory managed with the clock page replacement ` +
			`algorithm.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(cmd.Flags())
		},
	}

	addKernelFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReportCmd())

	return rootCmd
}

// loadEnv reads .env, if present, and fills the flags the user did not set
// from the environment.
func loadEnv(flags *pflag.FlagSet) error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	for name, env := range envBindings {
		f := flags.Lookup(name)
		if f == nil || f.Changed {
			continue
		}

		value, found := os.LookupEnv(env)
		if !found {
			continue
		}

		if err := f.Value.Set(value); err != nil {
			return errors.New("invalid " + env + ": " + err.Error())
		}
	}

	return nil
}

// Execute runs the command line and returns the exit code.
func Execute() int {
	err := newRootCmd().Execute()
	if err != nil {
		return 1
	}

	return 0
}
