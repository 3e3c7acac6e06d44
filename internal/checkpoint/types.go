// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint defines the data model persisted by this module:
// projects, sessions, and the immutable checkpoints that make up a session.
package checkpoint

import "time"

// SchemaVersion is the current on-disk checkpoint format version. Anything
// else found on disk is a VersionMismatchError (Open Question #1 in
// DESIGN.md resolves to v1-only; no v2 writer exists yet).
const SchemaVersion = "1.0"

// WorkflowStep is the checkpoint-side workflow step enumeration. Unlike the
// agent-side subset an orchestrator iterates over, this enumeration also
// carries Error and Paused so a checkpoint can represent every state a
// session can be captured in without lossy remapping (DESIGN.md Open
// Question #2).
type WorkflowStep string

const (
	StepAnalyze   WorkflowStep = "analyze"
	StepReproduce WorkflowStep = "reproduce"
	StepPropose   WorkflowStep = "propose"
	StepApply     WorkflowStep = "apply"
	StepVerify    WorkflowStep = "verify"
	StepComplete  WorkflowStep = "complete"
	StepError     WorkflowStep = "error"
	StepPaused    WorkflowStep = "paused"
)

// IterationSteps is the subset of WorkflowStep an orchestrator may set as
// the agent's *current* workflow step while iterating; Error and Paused are
// terminal/suspended states a checkpoint can record but an iteration never
// starts in.
var IterationSteps = []WorkflowStep{StepAnalyze, StepReproduce, StepPropose, StepApply, StepVerify, StepComplete}

// SessionStatus is a session's lifecycle state.
type SessionStatus string

const (
	SessionActive    SessionStatus = "Active"
	SessionCompleted SessionStatus = "Completed"
	SessionFailed    SessionStatus = "Failed"
	SessionArchived  SessionStatus = "Archived"
)

// ProjectMetadata is the on-disk shape of projects/<hash>/metadata.json.
type ProjectMetadata struct {
	ProjectHash  string    `json:"project_hash"`
	ProjectPath  string    `json:"project_path"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	SessionCount int       `json:"session_count"`
	SizeBytes    int64     `json:"size_bytes"`
	GitRemote    string    `json:"git_remote,omitempty"`
}

// SessionMetadata is the on-disk shape of sessions/<id>/metadata.json.
type SessionMetadata struct {
	SessionID       string        `json:"session_id"`
	ProjectHash     string        `json:"project_hash"`
	CreatedAt       time.Time     `json:"created_at"`
	LastAccessed    time.Time     `json:"last_accessed"`
	CheckpointCount int           `json:"checkpoint_count"`
	Status          SessionStatus `json:"status"`
	Description     string        `json:"description,omitempty"`
	Tags            []string      `json:"tags"`
	SizeBytes       int64         `json:"size_bytes"`
}

// Preserved reports whether this session is immune to automatic cleanup
// under the given preservation flags (invariant I6).
func (m SessionMetadata) Preserved(preserveActive, preserveTagged bool) bool {
	if preserveActive && m.Status == SessionActive {
		return true
	}
	if preserveTagged && len(m.Tags) > 0 {
		return true
	}
	return false
}

// HasTag reports whether tag is present among the session's tags.
func (m SessionMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CheckpointMetadata is embedded in both the session index
// (checkpoints.json) and the full checkpoint file, so listing checkpoints
// never requires loading every checkpoint body.
type CheckpointMetadata struct {
	CheckpointID  string       `json:"checkpoint_id"`
	SessionID     string       `json:"session_id"`
	WorkflowStep  WorkflowStep `json:"workflow_step"`
	CreatedAt     time.Time    `json:"created_at"`
	SchemaVersion string       `json:"checkpoint_version"`
	SizeBytes     int64        `json:"size_bytes"`
}

// MessageRole is a conversation message's role.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCall is one tool invocation attached to an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in a checkpoint's conversation state.
type Message struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	TokenCount *int        `json:"token_count,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

// ModelConfig is the model identity/parameters captured with the
// conversation state.
type ModelConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// ConversationStats aggregates conversation-level counters.
type ConversationStats struct {
	MessageCount     int `json:"message_count"`
	TotalTokens      int `json:"total_tokens"`
	ToolCallCount    int `json:"tool_call_count"`
	AssistantTurns   int `json:"assistant_turns"`
}

// AgentState is the first checkpoint substate: the agent's execution
// position.
type AgentState struct {
	Mode             string            `json:"mode"`
	Iteration        int               `json:"iteration"`
	WorkflowStep     WorkflowStep      `json:"workflow_step"`
	MaxIterations    int               `json:"max_iterations"`
	TaskDescription  string            `json:"task_description"`
	Configuration    map[string]string `json:"configuration"`
	WorkingDirectory string            `json:"working_directory"`
	SessionStart     time.Time         `json:"session_start_time"`
	LastActivity     time.Time         `json:"last_activity_time"`
}

// ConversationState is the second checkpoint substate: full message
// history plus model identity and aggregate stats.
type ConversationState struct {
	Messages          []Message         `json:"messages"`
	SystemPrompt      string            `json:"system_prompt"`
	ContextWindowSize int               `json:"context_window_size"`
	Model             ModelConfig       `json:"model"`
	Stats             ConversationStats `json:"stats"`
}

// TrackedFile is one entry in the filesystem state's tracked-file list.
type TrackedFile struct {
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	ModTime     time.Time `json:"mod_time"`
	SHA256      string    `json:"sha256"`
	Permissions string    `json:"permissions"`
}

// GitStatus is the optional git snapshot embedded in filesystem state.
type GitStatus struct {
	Branch    string   `json:"branch"`
	Commit    string   `json:"commit"`
	Staged    []string `json:"staged"`
	Unstaged  []string `json:"unstaged"`
	Untracked []string `json:"untracked"`
}

// FilesystemState is the third checkpoint substate.
type FilesystemState struct {
	WorkingDirectory string            `json:"working_directory"`
	TrackedFiles     []TrackedFile     `json:"tracked_files"`
	ChangedFiles     []string          `json:"changed_files"`
	Git              *GitStatus        `json:"git,omitempty"`
	Permissions      map[string]string `json:"permissions"`
}

// ExecutedCommand is one entry in the tool state's command history.
type ExecutedCommand struct {
	Command   string        `json:"command"`
	Args      []string      `json:"args"`
	Cwd       string        `json:"cwd"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExecutionContext is the tool state's execution environment snapshot.
type ExecutionContext struct {
	Env        map[string]string `json:"env"`
	Cwd        string            `json:"cwd"`
	Timeout    time.Duration     `json:"timeout"`
	MaxRetries int               `json:"max_retries"`
}

// ToolState is the fourth checkpoint substate.
type ToolState struct {
	ActiveTools      []string          `json:"active_tools"`
	CommandHistory   []ExecutedCommand `json:"command_history"`
	ToolRegistry     []string          `json:"tool_registry"`
	ExecutionContext ExecutionContext  `json:"execution_context"`
}

// ResourceUsage is a coarse resource snapshot captured with environment
// state.
type ResourceUsage struct {
	MaxRSSBytes  int64   `json:"max_rss_bytes"`
	CPUPercent   float64 `json:"cpu_percent"`
	OpenFileDesc int     `json:"open_file_descriptors"`
}

// EnvironmentState is the fifth checkpoint substate.
type EnvironmentState struct {
	EnvVars     map[string]string `json:"env_vars"`
	SystemInfo  map[string]string `json:"system_info"`
	ProcessInfo map[string]string `json:"process_info"`
	Resources   ResourceUsage     `json:"resources"`
}

// Checkpoint is an immutable snapshot of the full agent state at an
// iteration boundary. It is write-once: nothing in this module mutates a
// Checkpoint value once saved.
type Checkpoint struct {
	Metadata     CheckpointMetadata `json:"metadata"`
	Agent        AgentState         `json:"agent_state"`
	Conversation ConversationState  `json:"conversation_state"`
	Filesystem   FilesystemState    `json:"filesystem_state"`
	Tool         ToolState          `json:"tool_state"`
	Environment  EnvironmentState   `json:"environment_state"`
}
