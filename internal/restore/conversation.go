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
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// EstimateTokens returns msg's cached token count when present, otherwise
// an estimate of ⌈len(content)/4⌉.
func EstimateTokens(msg checkpoint.Message) int {
	if msg.TokenCount != nil {
		return *msg.TokenCount
	}
	return (len(msg.Content) + 3) / 4
}

// RebuildContext processes messages newest-first, accumulating estimated
// tokens, and includes each message whose addition keeps the running total
// at or below window. The returned slice is ordered most-recent-first;
// droppedCount is how many older messages did not fit.
func RebuildContext(messages []checkpoint.Message, window int) (included []checkpoint.Message, droppedCount int) {
	total := 0
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i])
		if total+cost > window {
			droppedCount++
			continue
		}
		total += cost
		included = append(included, messages[i])
	}
	return included, droppedCount
}

// FilterMessages excludes system/tool roles per the include flags and, when
// limit > 0, keeps only the most recent limit messages (in chronological order).
func FilterMessages(messages []checkpoint.Message, includeSystem, includeTool bool, limit int) []checkpoint.Message {
	filtered := make([]checkpoint.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == checkpoint.RoleSystem && !includeSystem {
			continue
		}
		if msg.Role == checkpoint.RoleTool && !includeTool {
			continue
		}
		filtered = append(filtered, msg)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

func restoreConversationState(cs checkpoint.ConversationState, opts AgentOptions) ConversationResult {
	var result ConversationResult

	window := opts.EffectiveContextWindow
	if window <= 0 {
		window = cs.ContextWindowSize
	}
	if window <= 0 {
		result.Warnings = append(result.Warnings, "context window is zero; no conversation messages restored")
		return result
	}

	messages := cs.Messages
	if opts.MessageCap > 0 || !opts.IncludeSystem || !opts.IncludeTool {
		messages = FilterMessages(messages, opts.IncludeSystem, opts.IncludeTool, opts.MessageCap)
	}

	included, dropped := RebuildContext(messages, window)
	result.Messages = included
	result.DroppedCount = dropped
	if dropped > 0 {
		result.Warnings = append(result.Warnings, "some messages were dropped to fit the context window")
	}
	return result
}
