// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sessionmgr

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/haldane-labs/checkpointd/internal/agentctx"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/layout"
	"github.com/haldane-labs/checkpointd/internal/projectstore"
	"github.com/haldane-labs/checkpointd/internal/resume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, checkpointing bool, interval int) (*Manager, *projectstore.Store, string) {
	t.Helper()
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	project, err := projectstore.Open(root, "proj-hash")
	require.NoError(t, err)
	tracker := resume.New(root.ResumePointerPath())
	return New(project, tracker, checkpointing, interval, 0), project, root.Base()
}

func TestShouldCreateCheckpointRespectsIntervalAndFlag(t *testing.T) {
	m, _, _ := newTestManager(t, true, 5)
	assert.False(t, m.ShouldCreateCheckpoint(0))
	assert.False(t, m.ShouldCreateCheckpoint(3))
	assert.True(t, m.ShouldCreateCheckpoint(5))
	assert.True(t, m.ShouldCreateCheckpoint(10))

	disabled, _, _ := newTestManager(t, false, 5)
	assert.False(t, disabled.ShouldCreateCheckpoint(5))
}

func TestStartSessionFreshSeedsClassificationWorkflow(t *testing.T) {
	m, _, _ := newTestManager(t, true, 5)
	agent := agentctx.NewInMemoryAgent("openai", "gpt-5", t.TempDir())

	result, err := m.StartSession(context.Background(), agent, t.TempDir(), StartOptions{
		Task:                      "fix parser",
		UseClassificationWorkflow: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, result.Status)

	msgs := agent.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, checkpoint.RoleSystem, msgs[0].Role)
	assert.Equal(t, checkpoint.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "fix parser")
	assert.NotNil(t, m.CurrentSession())
}

func TestStartSessionFreshSeedsLegacyTemplates(t *testing.T) {
	m, _, _ := newTestManager(t, true, 5)
	agent := agentctx.NewInMemoryAgent("openai", "gpt-5", t.TempDir())
	agent.RegisterTemplate("system", "You help with: {{task}}")
	agent.RegisterTemplate("task", "Please do: {{task}}")

	result, err := m.StartSession(context.Background(), agent, t.TempDir(), StartOptions{Task: "add retry"})
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, result.Status)

	msgs := agent.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "You help with: add retry", msgs[0].Content)
	assert.Equal(t, "Please do: add retry", msgs[1].Content)
	assert.True(t, agent.TemplateSent())
}

func TestTaskSlugTakesFirstThreeAlphanumericWordsLowercased(t *testing.T) {
	assert.Equal(t, "fix_the_parser", taskSlug("Fix the PARSER for good"))
	assert.Equal(t, "retrythingy", taskSlug("  retry-thingy!! "))
	assert.Equal(t, "task", taskSlug("   !!! ???"))
}

var sessionIDPattern = regexp.MustCompile(`^session_\d{4}_\d{2}_\d{2}_\d{2}_\d{2}_fix_the_parser$`)

func TestStartSessionFreshUsesMandatedSessionIDFormat(t *testing.T) {
	m, _, _ := newTestManager(t, true, 5)
	agent := agentctx.NewInMemoryAgent("openai", "gpt-5", t.TempDir())

	result, err := m.StartSession(context.Background(), agent, t.TempDir(), StartOptions{
		Task:                      "Fix the parser for good",
		UseClassificationWorkflow: true,
	})
	require.NoError(t, err)
	assert.Regexp(t, sessionIDPattern, result.SessionID)
}

func TestStartSessionFreshAppendsSuffixOnCollision(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	project, err := projectstore.Open(root, "proj-hash")
	require.NoError(t, err)
	tracker := resume.New(root.ResumePointerPath())
	m := New(project, tracker, true, 5, 0)

	base, err := m.newSessionID("fix the parser")
	require.NoError(t, err)
	_, err = project.OpenSession(base)
	require.NoError(t, err)

	withSuffix, err := m.newSessionID("fix the parser")
	require.NoError(t, err)
	assert.NotEqual(t, base, withSuffix)
	assert.Regexp(t, regexp.MustCompile("^"+regexp.QuoteMeta(base)+`_[0-9a-f]{8}$`), withSuffix)
}

func TestCreateCheckpointAssignsSequentialID(t *testing.T) {
	m, _, _ := newTestManager(t, true, 5)
	agent := agentctx.NewInMemoryAgent("openai", "gpt-5", t.TempDir())
	_, err := m.StartSession(context.Background(), agent, t.TempDir(), StartOptions{Task: "x", UseClassificationWorkflow: true})
	require.NoError(t, err)

	agent.SetWorkflowStep(checkpoint.StepAnalyze)
	cp1, err := m.CreateCheckpoint(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, "001_analyze", cp1.Metadata.CheckpointID)

	agent.SetWorkflowStep(checkpoint.StepPropose)
	cp2, err := m.CreateCheckpoint(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, "002_propose", cp2.Metadata.CheckpointID)
}

func TestCreateCheckpointEnforcesMaxCheckpointsPerSession(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	project, err := projectstore.Open(root, "proj-hash")
	require.NoError(t, err)
	tracker := resume.New(root.ResumePointerPath())
	m := New(project, tracker, true, 1, 2)

	agent := agentctx.NewInMemoryAgent("openai", "gpt-5", t.TempDir())
	_, err = m.StartSession(context.Background(), agent, t.TempDir(), StartOptions{Task: "x", UseClassificationWorkflow: true})
	require.NoError(t, err)

	for range 3 {
		_, err := m.CreateCheckpoint(context.Background(), agent)
		require.NoError(t, err)
	}

	list, err := m.CurrentSession().ListCheckpoints()
	require.NoError(t, err)
	assert.Len(t, list, 2, "the configured cap of 2 evicts the oldest checkpoint as the third is saved")
}

func TestResumeFromCheckpointReplaysMessagesAndState(t *testing.T) {
	agent := agentctx.NewInMemoryAgent("openai", "gpt-5", t.TempDir())
	agent.AppendUser("stale message")

	cp := checkpoint.Checkpoint{
		Agent: checkpoint.AgentState{
			Mode: "autonomous", WorkflowStep: checkpoint.StepPropose, Iteration: 2, TaskDescription: "fix parser",
		},
		Conversation: checkpoint.ConversationState{
			Messages: []checkpoint.Message{
				{Role: checkpoint.RoleSystem, Content: "sys"},
				{Role: checkpoint.RoleUser, Content: "do the thing"},
				{Role: checkpoint.RoleAssistant, Content: "", ToolCalls: []checkpoint.ToolCall{{ID: "c1", Name: "submit"}}},
				{Role: checkpoint.RoleTool, Content: "ok", ToolCallID: "c1", Name: "submit"},
				{Role: checkpoint.RoleTool, Content: "fallback id", Name: "other"},
			},
		},
	}

	ResumeFromCheckpoint(agent, cp)

	assert.Equal(t, checkpoint.StepPropose, agent.WorkflowStep())
	assert.Equal(t, 2, agent.Iteration())
	assert.Equal(t, "fix parser", agent.TaskDescription())

	msgs := agent.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, checkpoint.RoleSystem, msgs[0].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	assert.NotEmpty(t, msgs[4].ToolCallID, "tool message missing an id should get a fabricated one")
}

func TestStartSessionResumesFromPointerAndAppendsNewTask(t *testing.T) {
	root, err := layout.NewRoot(t.TempDir())
	require.NoError(t, err)
	project, err := projectstore.Open(root, "proj-hash")
	require.NoError(t, err)
	tracker := resume.New(root.ResumePointerPath())
	m := New(project, tracker, true, 5, 0)

	sess, err := project.OpenSession("sess-1")
	require.NoError(t, err)
	cp := checkpoint.Checkpoint{
		Metadata: checkpoint.CheckpointMetadata{
			CheckpointID: checkpoint.FormatID(2, checkpoint.StepPropose),
			SessionID:    "sess-1",
			WorkflowStep: checkpoint.StepPropose,
			CreatedAt:    time.Now().UTC(),
		},
		Agent: checkpoint.AgentState{WorkflowStep: checkpoint.StepPropose, Iteration: 2, TaskDescription: "fix parser"},
		Conversation: checkpoint.ConversationState{
			Messages: []checkpoint.Message{{Role: checkpoint.RoleUser, Content: "fix parser"}},
		},
	}
	require.NoError(t, sess.SaveCheckpoint(cp))

	projectPath := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, tracker.Write(resume.Pointer{
		ProjectPath:  projectPath,
		SessionID:    "sess-1",
		CheckpointID: cp.Metadata.CheckpointID,
		RestoredAt:   time.Now().UTC(),
	}))

	agent := agentctx.NewInMemoryAgent("openai", "gpt-5", t.TempDir())
	result, err := m.StartSession(context.Background(), agent, projectPath, StartOptions{Task: "add retry"})
	require.NoError(t, err)
	assert.Equal(t, StatusResumedAndContinued, result.Status)
	assert.Equal(t, 3, agent.Iteration())

	msgs := agent.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "fix parser", msgs[0].Content)
	assert.Equal(t, "add retry", msgs[1].Content)
	assert.Equal(t, "003_propose", result.CheckpointID)

	_, ok := tracker.Read(projectPath)
	assert.False(t, ok, "resume pointer should be cleared after use")
}
