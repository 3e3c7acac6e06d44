// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
)

var idPattern = regexp.MustCompile(`^(\d{3,})_([a-z]+)$`)

// FormatID renders a checkpoint id as "NNN_<workflow-step>" with a
// zero-padded, monotonically increasing sequence number. The sequence is
// per-session and assigned by the caller; this function only formats it.
func FormatID(sequence int, step WorkflowStep) string {
	return fmt.Sprintf("%03d_%s", sequence, string(step))
}

// ParseID splits a checkpoint id back into its sequence number and workflow
// step. It returns an error if id was not produced by FormatID or carries an
// unrecognized workflow step.
func ParseID(id string) (sequence int, step WorkflowStep, err error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, "", fmt.Errorf("%w: %q", checkpointerr.ErrInvalidCheckpointID, id)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q: %v", checkpointerr.ErrInvalidCheckpointID, id, err)
	}
	parsedStep := WorkflowStep(m[2])
	if !validStep(parsedStep) {
		return 0, "", fmt.Errorf("%w: unrecognized workflow step %q in id %q", checkpointerr.ErrInvalidCheckpointID, m[2], id)
	}
	return n, parsedStep, nil
}

func validStep(step WorkflowStep) bool {
	switch step {
	case StepAnalyze, StepReproduce, StepPropose, StepApply, StepVerify, StepComplete, StepError, StepPaused:
		return true
	default:
		return false
	}
}

// NextSequence returns the sequence number FormatID should use for the next
// checkpoint in a session, given the ids already present (in any order).
// Gaps (from deleted checkpoints) are tolerated: the next sequence is always
// one past the highest seen, never a reused gap, so ids stay strictly
// increasing for the lifetime of a session (invariant I7).
func NextSequence(existingIDs []string) int {
	highest := 0
	for _, id := range existingIDs {
		n, _, err := ParseID(id)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}
