// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restore

import (
	"fmt"
	"os"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// readyWarningThreshold is the warning count at or above which an
// otherwise-error-free restoration is still not considered ready.
const readyWarningThreshold = 5

// AgentOptions parameterizes RestoreAgent's conversation-substate rebuild.
type AgentOptions struct {
	// EffectiveContextWindow overrides the checkpoint's own window when > 0.
	EffectiveContextWindow int
	IncludeSystem          bool
	IncludeTool            bool
	// MessageCap caps the filtered message count to the most recent N when > 0.
	MessageCap int
}

// AgentResult aggregates every substate restorer's outcome.
type AgentResult struct {
	Agent        SubstateResult
	Conversation ConversationResult
	Filesystem   SubstateResult
	Tool         SubstateResult
	Environment  EnvironmentResult

	Errors   []string
	Warnings []string
	Ready    bool
}

// SubstateResult is the warnings/errors a substate restorer accumulated.
type SubstateResult struct {
	Warnings []string
	Errors   []string
}

// ConversationResult is the Conversation substate restorer's outcome.
type ConversationResult struct {
	SubstateResult
	Messages     []checkpoint.Message
	DroppedCount int
}

// EnvironmentResult is the Environment substate restorer's outcome.
type EnvironmentResult struct {
	SubstateResult
	Applied []string
	Skipped []string
}

// RestoreAgent drives all five substate restorers against cp and aggregates
// their warnings/errors. Per-substate failures never abort the call; they
// accumulate into the result.
func RestoreAgent(cp checkpoint.Checkpoint, opts AgentOptions) AgentResult {
	var result AgentResult

	result.Agent = restoreAgentState(cp.Agent)
	result.Conversation = restoreConversationState(cp.Conversation, opts)
	result.Filesystem = restoreFilesystemState(cp.Filesystem)
	result.Tool = restoreToolState(cp.Tool)
	result.Environment = restoreEnvironmentState(cp.Environment)

	for _, r := range []SubstateResult{result.Agent, result.Conversation.SubstateResult, result.Filesystem, result.Tool, result.Environment.SubstateResult} {
		result.Errors = append(result.Errors, r.Errors...)
		result.Warnings = append(result.Warnings, r.Warnings...)
	}

	result.Ready = len(result.Errors) == 0 && len(result.Warnings) < readyWarningThreshold
	return result
}

func restoreAgentState(a checkpoint.AgentState) SubstateResult {
	var r SubstateResult
	if a.WorkingDirectory != "" {
		if _, err := os.Stat(a.WorkingDirectory); err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("agent working directory does not exist: %s", a.WorkingDirectory))
		}
	}
	if a.MaxIterations > 0 && a.Iteration > a.MaxIterations {
		r.Warnings = append(r.Warnings, fmt.Sprintf("iteration %d exceeds max_iterations %d", a.Iteration, a.MaxIterations))
	}
	if !a.LastActivity.IsZero() && !a.SessionStart.IsZero() && a.LastActivity.Before(a.SessionStart) {
		r.Warnings = append(r.Warnings, "last_activity_time precedes session_start_time")
	}
	return r
}

func restoreToolState(ts checkpoint.ToolState) SubstateResult {
	var r SubstateResult
	if ts.ExecutionContext.Cwd == "" {
		r.Warnings = append(r.Warnings, "tool execution_context.cwd is empty")
	}
	if ts.ExecutionContext.MaxRetries < 0 {
		r.Warnings = append(r.Warnings, "tool execution_context.max_retries is negative")
	}
	return r
}
