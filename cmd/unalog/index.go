package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dchud/unalog2/internal/search"
	"github.com/dchud/unalog2/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		applied, err := store.ApplyMigrations(cmd.Context(), e.db, e.cfg.MigrationsDir)
		if err != nil {
			return err
		}
		for _, version := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), "applied", version)
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
		}
		return nil
	},
}

var (
	indexUser  string
	indexQueue bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Resubmit entries to the search index",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		userID, err := e.userID(cmd.Context(), indexUser)
		if err != nil {
			return err
		}
		if indexQueue {
			if userID == 0 {
				return errors.New("--queue needs --user")
			}
			if err := e.store.EnqueueReindexUser(cmd.Context(), userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued reindex of %s\n", indexUser)
			return nil
		}
		var report search.ReindexReport
		if userID == 0 {
			report, err = e.mirror.Reindex(cmd.Context(), 0)
		} else {
			report, err = e.mirror.ReindexUser(cmd.Context(), userID)
		}
		if err != nil {
			return err
		}
		printReport(cmd, report)
		return nil
	},
}

var zapUser string

var zapCmd = &cobra.Command{
	Use:   "zap-index",
	Short: "Delete documents from the search index",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		userID, err := e.userID(cmd.Context(), zapUser)
		if err != nil {
			return err
		}
		if err := e.mirror.Zap(userID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "index cleared")
		return nil
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect or drain the index queue",
}

var outboxDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Apply pending index operations once",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		relay := search.NewRelay(e.store, e.mirror, e.log, e.cfg.OutboxBatch, e.cfg.OutboxMaxAttempts, e.cfg.OutboxPollInterval)
		applied, err := relay.Drain(cmd.Context())
		if err != nil {
			return err
		}
		pending, err := e.store.PendingOutboxCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d, pending %d\n", applied, pending)
		return nil
	},
}

var outboxStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count pending index operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		pending, err := e.store.PendingOutboxCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pending %d, index healthy %t\n", pending, e.mirror.Healthy())
		return nil
	},
}

func printReport(cmd *cobra.Command, report search.ReindexReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %d documents in %d submissions, %d commits\n",
		report.Submitted, report.Submissions, report.Commits)
	if len(report.Failed) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "failed ids: %v\n", report.Failed)
	}
}

func init() {
	indexCmd.Flags().StringVar(&indexUser, "user", "", "only this user's entries")
	indexCmd.Flags().BoolVar(&indexQueue, "queue", false, "leave the reindex to the running API's outbox relay")
	zapCmd.Flags().StringVar(&zapUser, "user", "", "only this user's documents")
	outboxCmd.AddCommand(outboxDrainCmd, outboxStatusCmd)
	rootCmd.AddCommand(migrateCmd, indexCmd, zapCmd, outboxCmd)
}
