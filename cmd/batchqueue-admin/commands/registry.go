package commands

import (
	"fmt"

	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/spf13/cobra"
)

// NewRegistryCmd creates the registry command group.
func NewRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Job-class registry commands",
	}

	cmd.AddCommand(newRegistryListCmd())
	cmd.AddCommand(newRegistryDiffCmd())

	return cmd
}

// newRegistryListCmd lists the classes registered on an empty
// baseline registry — real class registration happens in the worker
// binary's main(), so this always reports none; it exists so the
// baseline and the `diff` subcommand share one code path.
func newRegistryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List classes on the baseline registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := registry.New().ClassNames()

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return printJSON(names)
			}
			if len(names) == 0 {
				fmt.Println("no classes registered on the baseline registry")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

// newRegistryDiffCmd compares a classes.yaml seed file against a fresh
// registry.New(). The admin binary registers no job classes, so every
// class in the seed file is reported as missing.
func newRegistryDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [seed-file]",
		Short: "Diff a classes.yaml seed file against an empty registry baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := registry.LoadSeedFile(args[0])
			if err != nil {
				return err
			}

			reg := registry.New()
			var missing []string
			for class := range seed.Classes {
				if !reg.Has(class) {
					missing = append(missing, class)
				}
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return printJSON(map[string]interface{}{"missing": missing})
			}

			if len(missing) == 0 {
				fmt.Println("no missing classes")
				return nil
			}
			fmt.Println("classes declared in seed file but not registered:")
			for _, c := range missing {
				fmt.Printf("  - %s\n", c)
			}
			return nil
		},
	}
}
