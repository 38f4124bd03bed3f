package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/compensation"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/spf13/cobra"
)

// NewBatchCmd creates the batch command group.
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Batch inspection and lifecycle commands",
		Long:  "Get, list, cancel, and clean up batches and chains",
	}

	cmd.AddCommand(newBatchGetCmd())
	cmd.AddCommand(newBatchListCmd())
	cmd.AddCommand(newBatchCancelCmd())
	cmd.AddCommand(newBatchCleanupCmd())

	return cmd
}

func newBatchGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [batch-id]",
		Short: "Show a single batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, store, err := openManager()
			if err != nil {
				return err
			}
			defer store.Close()

			b, err := mgr.GetBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(b)
		},
	}
}

func newBatchListCmd() *cobra.Command {
	var (
		batchType string
		status    string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, store, err := openManager()
			if err != nil {
				return err
			}
			defer store.Close()

			filter := storage.BatchFilter{
				Type:   batchjob.BatchType(batchType),
				Status: batchjob.BatchStatus(status),
			}
			batches, err := mgr.GetBatches(cmd.Context(), filter, limit, offset)
			if err != nil {
				return err
			}
			total, err := mgr.CountBatches(cmd.Context(), filter)
			if err != nil {
				return err
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return printJSON(map[string]interface{}{"batches": batches, "total": total})
			}

			fmt.Printf("%-36s  %-10s  %-10s  %-8s\n", "ID", "TYPE", "STATUS", "JOBS")
			for _, b := range batches {
				fmt.Printf("%-36s  %-10s  %-10s  %-8d\n", b.ID, b.Type, b.Status, len(b.Jobs))
			}
			fmt.Printf("\n(showing %d of %d batches)\n", len(batches), total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&batchType, "type", "t", "", "Filter by type (parallel, sequential)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of batches to display")
	cmd.Flags().IntVarP(&offset, "offset", "o", 0, "Pagination offset")

	return cmd
}

func newBatchCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [batch-id]",
		Short: "Cancel a batch",
		Long:  "Write the cancelling tombstone, trigger compensation for completed compensation-bearing jobs, then delete the batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, store, err := openManager()
			if err != nil {
				return err
			}
			defer store.Close()

			comp := compensation.New(mgr)
			launch := func(ctx context.Context, b *batchjob.Batch) error {
				_, err := comp.Launch(ctx, b)
				return err
			}
			if err := mgr.CancelBatch(cmd.Context(), args[0], launch); err != nil {
				return err
			}
			fmt.Printf("batch %s cancelled\n", args[0])
			return nil
		},
	}
}

func newBatchCleanupCmd() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete terminal batches older than a retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, store, err := openManager()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := mgr.Cleanup(cmd.Context(), olderThanDays)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d batches older than %d days\n", n, olderThanDays)
			return nil
		},
	}

	cmd.Flags().IntVarP(&olderThanDays, "older-than-days", "d", 30, "Retention window in days")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(cmdOut)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
