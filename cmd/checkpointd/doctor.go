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
	"os"

	"github.com/spf13/cobra"

	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
	"github.com/haldane-labs/checkpointd/internal/projectstore"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate and repair every session under the storage root",
	Run: func(cmd *cobra.Command, args []string) {
		root, err := openRoot()
		if err != nil {
			fatalf("open storage root: %v", err)
		}

		projectHashes, err := os.ReadDir(root.ProjectsDir())
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("no projects recorded under this storage root")
				return
			}
			fatalf("list projects: %v", err)
		}

		var totalActions int
		for _, entry := range projectHashes {
			if !entry.IsDir() {
				continue
			}
			store, err := projectstore.Open(root, entry.Name())
			if err != nil {
				fmt.Printf("project %s: [%s] %v\n", entry.Name(), checkpointerr.Classify(err), err)
				continue
			}
			sessions, err := store.ListSessions()
			if err != nil {
				fmt.Printf("project %s: list sessions: [%s] %v\n", entry.Name(), checkpointerr.Classify(err), err)
				continue
			}
			for _, sessionMeta := range sessions {
				session, err := store.OpenSession(sessionMeta.SessionID)
				if err != nil {
					fmt.Printf("project %s session %s: [%s] %v\n", entry.Name(), sessionMeta.SessionID, checkpointerr.Classify(err), err)
					continue
				}
				actions, err := session.ValidateAndRepair()
				if err != nil {
					fmt.Printf("project %s session %s: [%s] %v\n", entry.Name(), sessionMeta.SessionID, checkpointerr.Classify(err), err)
					continue
				}
				for _, a := range actions {
					fmt.Printf("project %s session %s: %s %s\n", entry.Name(), sessionMeta.SessionID, a.Kind, a.CheckpointID)
				}
				totalActions += len(actions)
			}
		}

		fmt.Printf("doctor: %d repair action(s) applied\n", totalActions)
		if totalActions > 0 {
			fmt.Println(checkpointerr.Suggest(checkpointerr.ErrCorruptedData))
		}
	},
}
