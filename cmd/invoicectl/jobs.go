package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/arkhan2/invoicing-system-sub001/jobs"
)

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger background jobs and inspect the queue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List task types the worker handles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range jobs.TaskTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}

	trigger := &cobra.Command{
		Use:     "trigger <task-type>",
		Short:   "Enqueue an immediate run of a task",
		Example: `  invoicectl jobs trigger estimates:expire`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// reject unknown types before dialing Redis
			if _, err := jobs.NewTask(args[0], time.Now()); err != nil {
				return err
			}
			client := jobs.NewClient(opts.redisOpts())
			defer client.Close()
			info, err := client.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opts.logger.Info("task enqueued", slog.String("type", info.Type), slog.String("id", info.ID))
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print the default queue state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inspector := asynq.NewInspector(opts.redisOpts())
			defer inspector.Close()
			return printStats(cmd, inspector)
		},
	}

	cmd.AddCommand(list, trigger, stats)
	return cmd
}

func printStats(cmd *cobra.Command, inspector jobs.QueueInspector) error {
	stats, err := jobs.Stats(inspector)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func (o *rootOptions) redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: o.cfg.RedisAddr, Password: o.cfg.RedisPassword}
}
