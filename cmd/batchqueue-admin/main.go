package main

import (
	"fmt"
	"os"

	"github.com/gongahkia/batchqueue/cmd/batchqueue-admin/commands"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "batchqueue-admin",
		Short: "BatchQueue administration CLI",
		Long: `batchqueue-admin is the operator tool for BatchQueue: it inspects
and manages batches, chains, the transport queue, and job-class
registration against the same storage and config the worker uses.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path (ignored: commands load config.* from ./configs or the working directory, plus BATCHQUEUE_* env vars)")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(commands.NewBatchCmd())
	rootCmd.AddCommand(commands.NewQueueCmd())
	rootCmd.AddCommand(commands.NewRegistryCmd())
	rootCmd.AddCommand(commands.NewAuthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
