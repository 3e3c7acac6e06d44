// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command checkpointd is the operator-facing surface over the checkpoint
// substrate: inspecting sessions and checkpoints, running the cleanup sweep
// by hand, and a doctor command for diagnosing a storage root.
package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/haldane-labs/checkpointd/internal/config"
	"github.com/haldane-labs/checkpointd/internal/layout"
	"github.com/haldane-labs/checkpointd/internal/tracing"
)

var (
	storageRoot string
	configPath  string
	traceExport string

	tracingShutdown func(context.Context) error

	rootCmd = &cobra.Command{
		Use:   "checkpointd",
		Short: "Inspect and maintain an agent checkpoint storage root",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			shutdown, err := tracing.Setup(context.Background(), tracing.Exporter(traceExport), "checkpointd", os.Stderr)
			if err != nil {
				return err
			}
			tracingShutdown = shutdown
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&storageRoot, "storage-root", "", "override the checkpoint storage root (defaults to $HOME/.checkpointd)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (defaults to $HOME/.checkpointd/config.toml)")
	rootCmd.PersistentFlags().StringVar(&traceExport, "trace-exporter", "none", `trace span exporter: "none" or "stdout"`)

	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsShowCmd)
	checkpointsCmd.AddCommand(checkpointsRestoreCmd)

	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	err := rootCmd.Execute()
	if tracingShutdown != nil {
		_ = tracingShutdown(context.Background())
	}
	if err != nil {
		log.Fatalf("checkpointd: %v", err)
	}
}

func openRoot() (*layout.Root, error) {
	base := storageRoot
	if base == "" {
		var err error
		base, err = layout.DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	return layout.NewRoot(base)
}

func loadConfig() (config.File, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.File{}, err
		}
	}
	return config.Load(path)
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}
