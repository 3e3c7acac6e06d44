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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haldane-labs/checkpointd/internal/projecthash"
	"github.com/haldane-labs/checkpointd/internal/projectstore"
	"github.com/haldane-labs/checkpointd/internal/restore"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect checkpoints recorded for a session",
}

func openSession(projectPath, sessionID string) (*projectstore.Store, error) {
	root, err := openRoot()
	if err != nil {
		return nil, err
	}
	hash, err := projecthash.Compute(projectPath)
	if err != nil {
		return nil, err
	}
	store, err := projectstore.Open(root, hash)
	if err != nil {
		return nil, err
	}
	canonical, err := projecthash.Canonicalize(projectPath)
	if err != nil {
		return nil, err
	}
	if err := store.RecordProjectPath(canonical); err != nil {
		return nil, err
	}
	return store, nil
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list [project-path] [session-id]",
	Short: "List checkpoints for a session, oldest first",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openSession(args[0], args[1])
		if err != nil {
			fatalf("open project: %v", err)
		}
		session, err := store.OpenSession(args[1])
		if err != nil {
			fatalf("open session: %v", err)
		}
		checkpoints, err := session.ListCheckpoints()
		if err != nil {
			fatalf("list checkpoints: %v", err)
		}
		for _, cp := range checkpoints {
			fmt.Printf("%s\tstep=%s\tcreated=%s\tsize=%d\n", cp.CheckpointID, cp.WorkflowStep, cp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), cp.SizeBytes)
		}
	},
}

var checkpointsShowCmd = &cobra.Command{
	Use:   "show [project-path] [session-id] [checkpoint-id]",
	Short: "Print one checkpoint's full contents as JSON",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openSession(args[0], args[1])
		if err != nil {
			fatalf("open project: %v", err)
		}
		session, err := store.OpenSession(args[1])
		if err != nil {
			fatalf("open session: %v", err)
		}
		cp, err := session.LoadCheckpoint(args[2])
		if err != nil {
			fatalf("load checkpoint: %v", err)
		}
		out, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			fatalf("marshal checkpoint: %v", err)
		}
		fmt.Println(string(out))
	},
}

var restoreSkipValidate bool

var checkpointsRestoreCmd = &cobra.Command{
	Use:   "restore [project-path] [session-id] [checkpoint-id]",
	Short: "Run the Restoration Engine against one checkpoint and print the resulting bundle",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openSession(args[0], args[1])
		if err != nil {
			fatalf("open project: %v", err)
		}
		session, err := store.OpenSession(args[1])
		if err != nil {
			fatalf("open session: %v", err)
		}

		bundle, err := restore.Checkpoint(context.Background(), session, args[2], !restoreSkipValidate)
		if err != nil {
			fatalf("restore checkpoint: %v", err)
		}
		out, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			fatalf("marshal bundle: %v", err)
		}
		fmt.Println(string(out))
	},
}

func init() {
	checkpointsRestoreCmd.Flags().BoolVar(&restoreSkipValidate, "skip-validate", false, "skip the Restoration Engine validator before returning the bundle")
}
