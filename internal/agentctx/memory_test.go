// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agentctx

import (
	"context"
	"os"
	"testing"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageStoreAppendAndCount(t *testing.T) {
	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")
	a.AppendSystem("sys")
	a.AppendUser("hello")
	a.AppendAssistantWithToolCalls("", []checkpoint.ToolCall{{ID: "1", Name: "submit"}})
	a.AppendTool("1", "submit", "ok")

	assert.Equal(t, 4, a.Count())
	msgs := a.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, checkpoint.RoleTool, msgs[3].Role)
	assert.Equal(t, "1", msgs[3].ToolCallID)

	a.Clear()
	assert.Equal(t, 0, a.Count())
}

func TestToolRegistrationAndExecute(t *testing.T) {
	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")
	a.RegisterTool(ToolSchema{Name: "submit", Description: "finish the task"}, func(ctx context.Context, call checkpoint.ToolCall) ToolResult {
		return ToolResult{ID: call.ID, Name: call.Name, Content: "done", Success: true}
	})

	schemas := a.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "submit", schemas[0].Name)

	results := a.Execute(context.Background(), []checkpoint.ToolCall{{ID: "1", Name: "submit"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestSchemasExcludesNamedTools(t *testing.T) {
	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")
	a.RegisterTool(ToolSchema{Name: "classify_task"}, nil)
	a.RegisterTool(ToolSchema{Name: "submit"}, nil)

	schemas := a.Schemas("classify_task")
	require.Len(t, schemas, 1)
	assert.Equal(t, "submit", schemas[0].Name)
}

func TestRenderSubstitutesVariables(t *testing.T) {
	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")
	out, err := a.Render("Task: {{task}}, extra: {{extra}}", []TemplateVar{
		{Name: "task", Value: "fix parser"},
		{Name: "extra", Value: "none"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Task: fix parser, extra: none", out)
}

func TestExtractToolCallsRecognizesConvention(t *testing.T) {
	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")
	calls, ok := a.ExtractToolCalls("TOOL_CALL:submit:{}")
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "submit", calls[0].Name)

	_, ok = a.ExtractToolCalls("plain text response")
	assert.False(t, ok)
}

func TestTrimHistoryKeepsMostRecent(t *testing.T) {
	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")
	a.AppendUser("1")
	a.AppendUser("2")
	a.AppendUser("3")
	a.TrimHistory(2)

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].Content)
	assert.Equal(t, "3", msgs[1].Content)
}

func TestStateRoundTrip(t *testing.T) {
	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")
	a.SetWorkflowStep(checkpoint.StepVerify)
	a.SetIteration(3)
	a.SetRunning(true)
	a.SetClassificationDone(true)

	assert.Equal(t, checkpoint.StepVerify, a.WorkflowStep())
	assert.Equal(t, 3, a.Iteration())
	assert.True(t, a.Running())
	assert.True(t, a.ClassificationDone())
}

func TestSanitizedEnvSnapshotHonorsFilterFlag(t *testing.T) {
	require.NoError(t, os.Setenv("CHECKPOINTD_TEST_SECRET", "shh"))
	defer os.Unsetenv("CHECKPOINTD_TEST_SECRET")

	a := NewInMemoryAgent("openai", "gpt-5", "/tmp")

	filtered := a.SanitizedEnvSnapshot()
	_, present := filtered["CHECKPOINTD_TEST_SECRET"]
	assert.False(t, present, "filtering is on by default, so an arbitrary env var must not leak into the snapshot")

	a.SetFilterSensitiveEnvVars(false)
	full := a.SanitizedEnvSnapshot()
	assert.Equal(t, "shh", full["CHECKPOINTD_TEST_SECRET"], "disabling the filter captures the full process environment")
}
