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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haldane-labs/checkpointd/internal/projecthash"
	"github.com/haldane-labs/checkpointd/internal/projectstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect sessions recorded for a project",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list [project-path]",
	Short: "List all sessions for a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root, err := openRoot()
		if err != nil {
			fatalf("open storage root: %v", err)
		}
		hash, err := projecthash.Compute(args[0])
		if err != nil {
			fatalf("compute project hash: %v", err)
		}
		store, err := projectstore.Open(root, hash)
		if err != nil {
			fatalf("open project: %v", err)
		}
		canonical, err := projecthash.Canonicalize(args[0])
		if err != nil {
			fatalf("canonicalize project path: %v", err)
		}
		if err := store.RecordProjectPath(canonical); err != nil {
			fatalf("record project path: %v", err)
		}
		sessions, err := store.ListSessions()
		if err != nil {
			fatalf("list sessions: %v", err)
		}
		for _, s := range sessions {
			fmt.Printf("%s\t%s\tcheckpoints=%d\tstatus=%s\n", s.SessionID, s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), s.CheckpointCount, s.Status)
		}
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [project-path] [session-id]",
	Short: "Show metadata for one session",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		root, err := openRoot()
		if err != nil {
			fatalf("open storage root: %v", err)
		}
		hash, err := projecthash.Compute(args[0])
		if err != nil {
			fatalf("compute project hash: %v", err)
		}
		store, err := projectstore.Open(root, hash)
		if err != nil {
			fatalf("open project: %v", err)
		}
		canonical, err := projecthash.Canonicalize(args[0])
		if err != nil {
			fatalf("canonicalize project path: %v", err)
		}
		if err := store.RecordProjectPath(canonical); err != nil {
			fatalf("record project path: %v", err)
		}
		session, err := store.OpenSession(args[1])
		if err != nil {
			fatalf("open session: %v", err)
		}
		meta, err := session.Metadata()
		if err != nil {
			fatalf("read session metadata: %v", err)
		}
		fmt.Printf("session_id: %s\n", meta.SessionID)
		fmt.Printf("status: %s\n", meta.Status)
		fmt.Printf("checkpoint_count: %d\n", meta.CheckpointCount)
		fmt.Printf("size_bytes: %d\n", meta.SizeBytes)
		fmt.Printf("tags: %v\n", meta.Tags)
		fmt.Printf("created_at: %s\n", meta.CreatedAt)
		fmt.Printf("last_accessed: %s\n", meta.LastAccessed)
	},
}
