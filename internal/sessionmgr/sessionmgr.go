// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sessionmgr implements the Session Manager: the component that
// starts, resumes, and checkpoints a session, sitting between the Workflow
// Orchestrator and the storage layer.
package sessionmgr

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haldane-labs/checkpointd/internal/agentctx"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/projecthash"
	"github.com/haldane-labs/checkpointd/internal/projectstore"
	"github.com/haldane-labs/checkpointd/internal/resume"
	"github.com/haldane-labs/checkpointd/internal/restore"
	"github.com/haldane-labs/checkpointd/internal/sessionstore"
)

// DefaultCheckpointInterval is how many iterations elapse between automatic
// checkpoints when no override is configured.
const DefaultCheckpointInterval = 5

const classificationSystemPrompt = "You are an autonomous agent. Classify the task, then execute it."

// StartStatus describes how start_session concluded.
type StartStatus string

const (
	StatusStarted             StartStatus = "started"
	StatusResumedAndContinued StartStatus = "resumed-and-continued"
)

// StartOptions parameterizes StartSession's conversation-seeding branch.
type StartOptions struct {
	Task                      string
	Extra                     map[string]string
	UseClassificationWorkflow bool
}

// StartResult reports what StartSession did.
type StartResult struct {
	Status       StartStatus
	SessionID    string
	CheckpointID string
}

// Manager owns the checkpointing policy and the currently active session
// storage for one project.
type Manager struct {
	project        *projectstore.Store
	tracker        *resume.Tracker
	checkpoint     bool
	interval       int
	maxCheckpoints int
	currentSess    *sessionstore.Store
	iterCounter    int
}

// New returns a Manager for one project. checkpointingEnabled is the
// `checkpointing.enabled` master switch; interval <= 0 falls back to
// DefaultCheckpointInterval. maxCheckpoints is the
// `checkpointing.max_checkpoints_per_session` cap; <= 0 means unbounded.
func New(project *projectstore.Store, tracker *resume.Tracker, checkpointingEnabled bool, interval, maxCheckpoints int) *Manager {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Manager{project: project, tracker: tracker, checkpoint: checkpointingEnabled, interval: interval, maxCheckpoints: maxCheckpoints}
}

// ShouldCreateCheckpoint reports whether iteration iter should trigger an
// automatic checkpoint: checkpointing must be enabled and iter must be a
// positive multiple of the configured interval.
func (m *Manager) ShouldCreateCheckpoint(iter int) bool {
	return m.checkpoint && iter > 0 && iter%m.interval == 0
}

// CurrentSession returns the session storage StartSession opened, or nil if
// none is active yet.
func (m *Manager) CurrentSession() *sessionstore.Store { return m.currentSess }

// StartSession starts or resumes a session: if the project has an
// in-window resume pointer it restores that checkpoint and continues the
// conversation with a fresh user message; otherwise it opens a new session
// and seeds its conversation per opts.
func (m *Manager) StartSession(ctx context.Context, agent agentctx.Agent, projectPath string, opts StartOptions) (StartResult, error) {
	canonical, err := projecthash.Canonicalize(projectPath)
	if err != nil {
		return StartResult{}, fmt.Errorf("sessionmgr: canonicalize project path: %w", err)
	}
	if err := m.project.RecordProjectPath(canonical); err != nil {
		return StartResult{}, fmt.Errorf("sessionmgr: record project path: %w", err)
	}

	if pointer, ok := m.tracker.Read(projectPath); ok {
		return m.resumeAndContinue(ctx, agent, pointer, opts)
	}
	return m.startFresh(ctx, agent, opts)
}

func (m *Manager) resumeAndContinue(ctx context.Context, agent agentctx.Agent, pointer resume.Pointer, opts StartOptions) (StartResult, error) {
	sess, err := m.project.OpenSession(pointer.SessionID)
	if err != nil {
		return StartResult{}, fmt.Errorf("sessionmgr: open resumed session: %w", err)
	}
	sess.SetMaxCheckpoints(m.maxCheckpoints)
	m.currentSess = sess

	cp, err := sess.LoadCheckpoint(pointer.CheckpointID)
	if err != nil {
		return StartResult{}, fmt.Errorf("sessionmgr: load resumed checkpoint: %w", err)
	}
	ResumeFromCheckpoint(agent, cp)

	if err := m.tracker.Clear(); err != nil {
		return StartResult{}, fmt.Errorf("sessionmgr: clear resume tracker: %w", err)
	}

	agent.SetIteration(agent.Iteration() + 1)
	agent.AppendUser(opts.Task)

	newCp, err := m.CreateCheckpoint(ctx, agent)
	if err != nil {
		return StartResult{}, fmt.Errorf("sessionmgr: checkpoint after resume: %w", err)
	}

	return StartResult{Status: StatusResumedAndContinued, SessionID: sess.SessionID(), CheckpointID: newCp.Metadata.CheckpointID}, nil
}

func (m *Manager) startFresh(ctx context.Context, agent agentctx.Agent, opts StartOptions) (StartResult, error) {
	sessionID, err := m.newSessionID(opts.Task)
	if err != nil {
		return StartResult{}, fmt.Errorf("sessionmgr: generate session id: %w", err)
	}
	agent.SessionStart(sessionID, opts.Task)
	agent.SetTaskDescription(opts.Task)

	if m.checkpoint {
		sess, err := m.project.OpenSession(sessionID)
		if err != nil {
			return StartResult{}, fmt.Errorf("sessionmgr: open new session: %w", err)
		}
		sess.SetMaxCheckpoints(m.maxCheckpoints)
		m.currentSess = sess
	}

	if opts.UseClassificationWorkflow {
		agent.AppendSystem(classificationSystemPrompt)
		agent.AppendUser(fmt.Sprintf("Classify and execute: %s", opts.Task))
	} else if err := m.seedLegacyTemplates(agent, opts); err != nil {
		return StartResult{}, err
	}

	return StartResult{Status: StatusStarted, SessionID: sessionID}, nil
}

var nonAlphanumericRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// taskSlug builds the "<task-slug>" component of a session id: the first up
// to three alphanumeric words of task, lowercased and joined with "_".
// Words that are empty after stripping punctuation are skipped rather than
// counted. A task with no alphanumeric content at all slugs to "task".
func taskSlug(task string) string {
	var words []string
	for _, w := range strings.Fields(task) {
		cleaned := nonAlphanumericRun.ReplaceAllString(w, "")
		if cleaned == "" {
			continue
		}
		words = append(words, strings.ToLower(cleaned))
		if len(words) == 3 {
			break
		}
	}
	if len(words) == 0 {
		return "task"
	}
	return strings.Join(words, "_")
}

// newSessionID builds a session id in the mandated
// "session_<YYYY_MM_DD_HH_MM>_<task-slug>" shape. Because the timestamp is
// only minute-resolution, two sessions for the same project started in the
// same minute with the same task words would otherwise collide; when the
// base id is already in use, a short uuid fragment is appended purely to
// disambiguate, not as part of the mandated format.
func (m *Manager) newSessionID(task string) (string, error) {
	base := fmt.Sprintf("session_%s_%s", time.Now().UTC().Format("2006_01_02_15_04"), taskSlug(task))

	existing, err := m.project.ListSessions()
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(existing))
	for _, s := range existing {
		taken[s.SessionID] = true
	}
	if !taken[base] {
		return base, nil
	}
	return fmt.Sprintf("%s_%s", base, uuid.NewString()[:8]), nil
}

func (m *Manager) seedLegacyTemplates(agent agentctx.Agent, opts StartOptions) error {
	systemTemplate, err := agent.Load("system")
	if err != nil {
		return fmt.Errorf("sessionmgr: load system template: %w", err)
	}
	renderedSystem, err := agent.Render(systemTemplate, templateVars(opts))
	if err != nil {
		return fmt.Errorf("sessionmgr: render system template: %w", err)
	}
	agent.AppendSystem(renderedSystem)

	taskTemplate, err := agent.Load("task")
	if err != nil {
		taskTemplate, err = agent.Load("fallback")
		if err != nil {
			return fmt.Errorf("sessionmgr: load task/fallback template: %w", err)
		}
	}
	renderedTask, err := agent.Render(taskTemplate, templateVars(opts))
	if err != nil {
		return fmt.Errorf("sessionmgr: render task template: %w", err)
	}
	agent.AppendUser(renderedTask)
	agent.SetTemplateSent(true)
	return nil
}

func templateVars(opts StartOptions) []agentctx.TemplateVar {
	vars := []agentctx.TemplateVar{{Name: "task", Value: opts.Task}}
	for k, v := range opts.Extra {
		vars = append(vars, agentctx.TemplateVar{Name: k, Value: v})
	}
	return vars
}

// ResumeFromCheckpoint restores agent state fields, clears the message
// list, and replays checkpoint messages role-by-role, preserving tool-call
// shape and tool identity.
func ResumeFromCheckpoint(agent agentctx.Agent, cp checkpoint.Checkpoint) {
	agent.SetMode(cp.Agent.Mode)
	agent.SetWorkflowStep(cp.Agent.WorkflowStep)
	agent.SetIteration(cp.Agent.Iteration)
	agent.SetTaskDescription(cp.Agent.TaskDescription)

	agent.Clear()
	for _, msg := range cp.Conversation.Messages {
		switch msg.Role {
		case checkpoint.RoleSystem:
			agent.AppendSystem(msg.Content)
		case checkpoint.RoleUser:
			agent.AppendUser(msg.Content)
		case checkpoint.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				agent.AppendAssistantWithToolCalls(msg.Content, msg.ToolCalls)
			} else {
				agent.AppendAssistant(msg.Content)
			}
		case checkpoint.RoleTool:
			id := msg.ToolCallID
			if id == "" {
				id = "tool_" + uuid.NewString()
			}
			agent.AppendTool(id, msg.Name, msg.Content)
		}
	}
}

// CreateCheckpoint bumps the session's own sequence counter (independent of
// the agent's workflow iteration), assembles the full checkpoint from the
// agent's current state, and delegates to the active session storage.
func (m *Manager) CreateCheckpoint(ctx context.Context, agent agentctx.Agent) (checkpoint.Checkpoint, error) {
	if m.currentSess == nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("sessionmgr: no active session storage")
	}

	existing, err := m.currentSess.ListCheckpoints()
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("sessionmgr: list checkpoints: %w", err)
	}
	ids := make([]string, len(existing))
	for i, e := range existing {
		ids[i] = e.CheckpointID
	}
	seq := checkpoint.NextSequence(ids)
	id := checkpoint.FormatID(seq, agent.WorkflowStep())

	now := time.Now().UTC()
	cp := checkpoint.Checkpoint{
		Metadata: checkpoint.CheckpointMetadata{
			CheckpointID: id,
			SessionID:    m.currentSess.SessionID(),
			WorkflowStep: agent.WorkflowStep(),
			CreatedAt:    now,
		},
		Agent: checkpoint.AgentState{
			Mode:             agent.Mode(),
			Iteration:        agent.Iteration(),
			WorkflowStep:     agent.WorkflowStep(),
			TaskDescription:  agent.TaskDescription(),
			WorkingDirectory: agent.WorkingDirectory(),
			Configuration:    agent.CheckpointConfigSnapshot(),
			LastActivity:     now,
		},
		Conversation: checkpoint.ConversationState{
			Messages: agent.Messages(),
			Stats:    conversationStats(agent),
		},
		Environment: checkpoint.EnvironmentState{
			EnvVars:    agent.SanitizedEnvSnapshot(),
			SystemInfo: agent.SystemInfo(),
		},
	}

	if err := m.currentSess.SaveCheckpoint(cp); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("sessionmgr: save checkpoint: %w", err)
	}
	return cp, nil
}

func conversationStats(agent agentctx.Agent) checkpoint.ConversationStats {
	messages := agent.Messages()
	stats := checkpoint.ConversationStats{MessageCount: len(messages)}
	for _, msg := range messages {
		stats.TotalTokens += agent.EstimateTokens(msg.Content)
		stats.ToolCallCount += len(msg.ToolCalls)
		if msg.Role == checkpoint.RoleAssistant {
			stats.AssistantTurns++
		}
	}
	return stats
}

// RestoreBundle loads and validates a checkpoint through the Restoration
// Engine before handing it to ResumeFromCheckpoint — the path a CLI "resume"
// command takes, as opposed to the lighter internal resume used by
// StartSession's pointer-driven continuation.
func (m *Manager) RestoreBundle(ctx context.Context, sess *sessionstore.Store, checkpointID string, validate bool) (restore.Bundle, error) {
	return restore.Checkpoint(ctx, sess, checkpointID, validate)
}
