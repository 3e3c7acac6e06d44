// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haldane-labs/checkpointd/internal/cleanup"
)

var (
	cleanupDryRun bool
	cleanupDaemon bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the retention sweep against the storage root",
	Run: func(cmd *cobra.Command, args []string) {
		root, err := openRoot()
		if err != nil {
			fatalf("open storage root: %v", err)
		}
		file, err := loadConfig()
		if err != nil {
			fatalf("load config: %v", err)
		}

		audit, err := cleanup.OpenAuditLog(filepath.Join(root.LogsDir(), "cleanup_audit.jsonl"))
		if err != nil {
			fatalf("open audit log: %v", err)
		}
		defer audit.Close()

		engine := cleanup.NewEngine(root, audit, nil)
		retention := file.Checkpointing.Retention
		cfg := cleanup.Config{
			MaxAgeDays:            retention.MaxAgeDays,
			MaxTotalSizeGB:        retention.MaxTotalSizeGB,
			MaxSessionsPerProject: retention.MaxSessionsPerProject,
			PreserveActive:        retention.PreserveActiveSessions,
			PreserveTagged:        retention.PreserveTagged,
		}

		if cleanupDaemon {
			if !retention.EnableAutoCleanup {
				fatalf("cleanup: checkpointing.retention.enable_auto_cleanup is false; refusing to start the daemon")
			}
			interval := time.Duration(retention.CleanupIntervalHours) * time.Hour
			if interval <= 0 {
				interval = 24 * time.Hour
			}
			scheduler := cleanup.NewScheduler(engine, cfg, interval, nil)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			scheduler.Start(ctx)
			fmt.Printf("cleanup daemon running, interval=%s (ctrl-c to stop)\n", interval)
			<-ctx.Done()
			scheduler.Stop()
			return
		}

		report, err := engine.Run(cfg, cleanupDryRun)
		if err != nil {
			fatalf("cleanup run: %v", err)
		}

		fmt.Printf("dry_run=%v deleted_sessions=%d deleted_checkpoints=%d collapsed_dirs=%d swept_temp_files=%d bytes_freed=%d duration=%s\n",
			report.DryRun, report.DeletedSessions, report.DeletedCheckpoints, report.CollapsedDirs, report.SweptTempFiles, report.BytesFreed, report.Duration)
		for _, e := range report.Errors {
			fmt.Printf("error: step=%s target=%s err=%s\n", e.Step, e.Target, e.Err)
		}
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be deleted without deleting anything")
	cleanupCmd.Flags().BoolVar(&cleanupDaemon, "daemon", false, "run the cleanup sweep on a recurring interval until interrupted")
}
