// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agentctx defines the Agent Context Contract: the capability set
// the Session Manager and Workflow Orchestrator address an agent through.
// It is a set of small interfaces, not an inheritance hierarchy — any value
// satisfying the pieces it needs can stand in for an agent.
package agentctx

import (
	"context"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// MessageStore is the ordered conversation an agent is holding.
type MessageStore interface {
	Messages() []checkpoint.Message
	AppendSystem(content string)
	AppendUser(content string)
	AppendAssistant(content string)
	AppendAssistantWithToolCalls(content string, toolCalls []checkpoint.ToolCall)
	AppendTool(toolCallID, name, content string)
	Clear()
	Count() int
	CountTokens() int
	// TrimHistory keeps only the most recent limit messages when limit > 0
	// and the store holds more than that; a no-op otherwise.
	TrimHistory(limit int)
}

// Config reads typed configuration values the agent was started with.
type Config interface {
	String(key string) (string, bool)
	Int(key string) (int, bool)
	Bool(key string) (bool, bool)
	Float(key string) (float64, bool)
	WorkingDirectory() string
}

// State is the agent's mutable execution position.
type State interface {
	Mode() string
	SetMode(mode string)
	WorkflowStep() checkpoint.WorkflowStep
	SetWorkflowStep(step checkpoint.WorkflowStep)
	Iteration() int
	SetIteration(n int)
	TaskDescription() string
	SetTaskDescription(task string)
	Running() bool
	SetRunning(running bool)
	ClassificationDone() bool
	SetClassificationDone(done bool)
	ClassifiedTaskType() string
	SetClassifiedTaskType(taskType string)
	TemplateSent() bool
	SetTemplateSent(sent bool)
}

// Identity exposes read-only provider/model names.
type Identity interface {
	Provider() string
	Model() string
}

// Logger is the subset of logging calls every component above addresses the
// agent through, independent of the concrete logging backend.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	SessionStart(sessionID, task string)
	WorkflowIteration(iteration int, step checkpoint.WorkflowStep)
	LLMResponse(hasToolCalls bool, contentLen int)
	Completion(reason string, iterations int)
}

// Templates loads and renders named prompt templates.
type Templates interface {
	Load(name string) (string, error)
	Render(template string, vars []TemplateVar) (string, error)
}

// TemplateVar is one ordered name/value pair passed to Templates.Render.
type TemplateVar struct {
	Name  string
	Value string
}

// ToolResult is one tool invocation's outcome.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	Success bool
}

// Tools exposes the schemas available to the LLM and executes a batch of
// tool calls the LLM requested.
type Tools interface {
	Schemas(excludeNames ...string) []ToolSchema
	Execute(ctx context.Context, calls []checkpoint.ToolCall) []ToolResult
}

// ToolSchema describes one tool's name, description, and parameter shape as
// presented to the LLM.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CheckpointUtilities are the context-derived facts a checkpoint needs that
// don't live on any single other capability.
type CheckpointUtilities interface {
	EstimateTokens(content string) int
	SanitizedEnvSnapshot() map[string]string
	SystemInfo() map[string]string
	CheckpointConfigSnapshot() map[string]string
}

// Turns correlates a request with a turn id for logging/tracing.
type Turns interface {
	StartTurn(ctx context.Context) context.Context
	EndTurn(ctx context.Context)
	CurrentTurnID(ctx context.Context) string
}

// GenerateResult is what an LLM helper extracts from a raw textual response:
// either tool calls or plain content, never both.
type GenerateResult struct {
	Content   string
	ToolCalls []checkpoint.ToolCall
}

// LLMHelpers parses a raw textual model response into a GenerateResult.
type LLMHelpers interface {
	ParseResponse(raw string) (GenerateResult, error)
	ExtractToolCalls(raw string) ([]checkpoint.ToolCall, bool)
}

// Agent is the full capability set. The Session Manager and Workflow
// Orchestrator depend only on this interface, never on a concrete agent
// type.
type Agent interface {
	MessageStore
	Config
	State
	Identity
	Logger
	Templates
	Tools
	CheckpointUtilities
	Turns
	LLMHelpers
}
