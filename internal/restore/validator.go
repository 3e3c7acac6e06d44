// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package restore implements the Restoration Engine: loading a checkpoint,
// validating it, and rebuilding the five substates of agent execution from
// it.
package restore

import (
	"fmt"
	"os"
	"time"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// Severity classifies one validator Issue.
type Severity string

const (
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
	SeverityInfo    Severity = "Info"
)

// Issue is one finding produced against a substate of a checkpoint.
type Issue struct {
	Substate string   `json:"substate"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationResult is the full set of issues found against one checkpoint.
type ValidationResult struct {
	Issues []Issue `json:"issues"`
}

// Valid reports whether the checkpoint has no Error-severity issues.
func (r ValidationResult) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns only the Error-severity issues.
func (r ValidationResult) Errors() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// Validate runs the structural checks against a checkpoint. Required-field
// emptiness and clear inconsistencies are Errors; missing files,
// future-dated timestamps, and count mismatches are Warnings.
func Validate(cp checkpoint.Checkpoint) ValidationResult {
	var result ValidationResult
	add := func(substate string, severity Severity, message string) {
		result.Issues = append(result.Issues, Issue{Substate: substate, Severity: severity, Message: message})
	}

	if cp.Conversation.ContextWindowSize == 0 {
		add("conversation", SeverityError, "conversation.context_window_size zero")
	}
	if cp.Agent.MaxIterations > 0 && cp.Agent.Iteration > cp.Agent.MaxIterations {
		add("agent_state", SeverityError, "agent_state.current_iteration exceeds max")
	}
	if cp.Agent.WorkingDirectory == "" {
		add("agent_state", SeverityError, "agent_state.working_directory is required")
	}
	if cp.Agent.TaskDescription == "" {
		add("agent_state", SeverityError, "agent_state.task_description is required")
	}
	if !cp.Agent.LastActivity.IsZero() && !cp.Agent.SessionStart.IsZero() && cp.Agent.LastActivity.Before(cp.Agent.SessionStart) {
		add("agent_state", SeverityWarning, "agent_state.last_activity_time precedes session_start_time")
	}

	now := time.Now()
	if cp.Metadata.CreatedAt.After(now) {
		add("metadata", SeverityWarning, "metadata.created_at is in the future")
	}
	for _, msg := range cp.Conversation.Messages {
		if msg.Timestamp.After(now) {
			add("conversation", SeverityWarning, "a message timestamp is in the future")
			break
		}
	}
	if cp.Conversation.Stats.MessageCount != 0 && cp.Conversation.Stats.MessageCount != len(cp.Conversation.Messages) {
		add("conversation", SeverityWarning, fmt.Sprintf(
			"conversation.stats.message_count (%d) does not match recorded message count (%d)",
			cp.Conversation.Stats.MessageCount, len(cp.Conversation.Messages)))
	}
	for _, f := range cp.Filesystem.TrackedFiles {
		if _, err := os.Stat(f.Path); err != nil {
			add("filesystem", SeverityWarning, fmt.Sprintf("tracked file missing: %s", f.Path))
		}
	}

	return result
}
