package commands

import (
	"fmt"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/queueconfig"
	"github.com/gongahkia/batchqueue/internal/transport"
	"github.com/spf13/cobra"
)

// NewQueueCmd creates the queue command group.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Transport queue inspection commands",
	}

	cmd.AddCommand(newQueueStatsCmd())

	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth for the parallel and sequential transport queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			router := transport.NewRouter(queueFactory(&cfg.Batch))
			defer router.Close()

			qcfg := queueconfig.New(&cfg.Batch)
			parallelName := qcfg.Resolve(batchjob.TypeParallel, "", "")
			sequentialName := qcfg.Resolve(batchjob.TypeSequential, "", "")

			parallelDepth, err := router.Depth(cmd.Context(), parallelName)
			if err != nil {
				return err
			}
			sequentialDepth, err := router.Depth(cmd.Context(), sequentialName)
			if err != nil {
				return err
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return printJSON(map[string]interface{}{
					parallelName:   parallelDepth,
					sequentialName: sequentialDepth,
				})
			}

			fmt.Printf("%-20s  %s\n", parallelName, "depth "+fmt.Sprint(parallelDepth))
			fmt.Printf("%-20s  %s\n", sequentialName, "depth "+fmt.Sprint(sequentialDepth))
			return nil
		},
	}
}
