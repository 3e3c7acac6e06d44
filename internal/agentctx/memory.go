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
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
)

// allowedEnvVars is the short whitelist captured into filtered environment
// snapshots; everything else is dropped.
var allowedEnvVars = []string{"PATH", "HOME", "USER", "SHELL", "PWD", "TERM", "LANG", "LC_ALL"}

type turnKey struct{}

// InMemoryAgent is a single-process, single-session reference implementation
// of Agent: everything lives in memory and is lost on process exit. It is
// the agent value the Session Manager and Workflow Orchestrator exercise in
// this module's own tests, and a usable starting point for a real host
// process to wrap (templates/tools are injected, not hardcoded).
type InMemoryAgent struct {
	mu sync.Mutex

	messages []checkpoint.Message
	cfg      map[string]any
	workDir  string

	mode                string
	workflowStep        checkpoint.WorkflowStep
	iteration           int
	taskDescription     string
	running             bool
	classificationDone  bool
	classifiedTaskType  string
	templateSent        bool

	provider string
	model    string

	templates map[string]string
	tools     map[string]ToolSchema
	executor  func(ctx context.Context, call checkpoint.ToolCall) ToolResult

	filterEnv bool

	logs []string
}

// NewInMemoryAgent returns an empty agent identified by provider/model.
// Environment snapshots are filtered to allowedEnvVars by default, matching
// `checkpointing.security.filter_sensitive_env_vars`'s default of true; call
// SetFilterSensitiveEnvVars(false) to capture the full environment instead.
func NewInMemoryAgent(provider, model, workDir string) *InMemoryAgent {
	return &InMemoryAgent{
		cfg:       map[string]any{},
		workDir:   workDir,
		provider:  provider,
		model:     model,
		templates: map[string]string{},
		tools:     map[string]ToolSchema{},
		filterEnv: true,
	}
}

// SetFilterSensitiveEnvVars controls whether SanitizedEnvSnapshot restricts
// itself to allowedEnvVars (true, the default) or captures the full process
// environment unfiltered (false).
func (a *InMemoryAgent) SetFilterSensitiveEnvVars(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filterEnv = enabled
}

// SetConfig seeds a typed configuration value, overwriting any prior value
// for key.
func (a *InMemoryAgent) SetConfig(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg[key] = value
}

// RegisterTemplate makes name available to Load/Render.
func (a *InMemoryAgent) RegisterTemplate(name, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.templates[name] = body
}

// RegisterTool makes schema available via Schemas and routes its calls to fn.
func (a *InMemoryAgent) RegisterTool(schema ToolSchema, fn func(ctx context.Context, call checkpoint.ToolCall) ToolResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools[schema.Name] = schema
	if fn == nil {
		return
	}
	prev := a.executor
	name := schema.Name
	a.executor = func(ctx context.Context, call checkpoint.ToolCall) ToolResult {
		if prev == nil || call.Name == name {
			return fn(ctx, call)
		}
		return prev(ctx, call)
	}
}

// Logs returns every message recorded through the Logger interface, in
// order, for test assertions.
func (a *InMemoryAgent) Logs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.logs))
	copy(out, a.logs)
	return out
}

// --- MessageStore ---

func (a *InMemoryAgent) Messages() []checkpoint.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]checkpoint.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *InMemoryAgent) AppendSystem(content string) { a.append(checkpoint.RoleSystem, content) }
func (a *InMemoryAgent) AppendUser(content string)   { a.append(checkpoint.RoleUser, content) }
func (a *InMemoryAgent) AppendAssistant(content string) {
	a.append(checkpoint.RoleAssistant, content)
}

func (a *InMemoryAgent) AppendAssistantWithToolCalls(content string, toolCalls []checkpoint.ToolCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, checkpoint.Message{
		Role:      checkpoint.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
		ToolCalls: toolCalls,
	})
}

func (a *InMemoryAgent) AppendTool(toolCallID, name, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if toolCallID == "" {
		toolCallID = "tool_" + uuid.NewString()
	}
	a.messages = append(a.messages, checkpoint.Message{
		Role:       checkpoint.RoleTool,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		ToolCallID: toolCallID,
		Name:       name,
	})
}

func (a *InMemoryAgent) append(role checkpoint.MessageRole, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, checkpoint.Message{Role: role, Content: content, Timestamp: time.Now().UTC()})
}

func (a *InMemoryAgent) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
}

func (a *InMemoryAgent) TrimHistory(limit int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit <= 0 || len(a.messages) <= limit {
		return
	}
	a.messages = a.messages[len(a.messages)-limit:]
}

func (a *InMemoryAgent) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

func (a *InMemoryAgent) CountTokens() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, m := range a.messages {
		total += a.estimateTokensLocked(m.Content)
	}
	return total
}

// --- Config ---

func (a *InMemoryAgent) String(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.cfg[key].(string)
	return v, ok
}

func (a *InMemoryAgent) Int(key string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.cfg[key].(int)
	return v, ok
}

func (a *InMemoryAgent) Bool(key string) (bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.cfg[key].(bool)
	return v, ok
}

func (a *InMemoryAgent) Float(key string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.cfg[key].(float64)
	return v, ok
}

func (a *InMemoryAgent) WorkingDirectory() string { return a.workDir }

// --- State ---

func (a *InMemoryAgent) Mode() string    { a.mu.Lock(); defer a.mu.Unlock(); return a.mode }
func (a *InMemoryAgent) SetMode(m string) { a.mu.Lock(); defer a.mu.Unlock(); a.mode = m }

func (a *InMemoryAgent) WorkflowStep() checkpoint.WorkflowStep {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.workflowStep
}
func (a *InMemoryAgent) SetWorkflowStep(step checkpoint.WorkflowStep) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.workflowStep = step
}

func (a *InMemoryAgent) Iteration() int { a.mu.Lock(); defer a.mu.Unlock(); return a.iteration }
func (a *InMemoryAgent) SetIteration(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.iteration = n
}

func (a *InMemoryAgent) TaskDescription() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.taskDescription
}
func (a *InMemoryAgent) SetTaskDescription(task string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.taskDescription = task
}

func (a *InMemoryAgent) Running() bool { a.mu.Lock(); defer a.mu.Unlock(); return a.running }
func (a *InMemoryAgent) SetRunning(running bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = running
}

func (a *InMemoryAgent) ClassificationDone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.classificationDone
}
func (a *InMemoryAgent) SetClassificationDone(done bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.classificationDone = done
}

func (a *InMemoryAgent) ClassifiedTaskType() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.classifiedTaskType
}
func (a *InMemoryAgent) SetClassifiedTaskType(taskType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.classifiedTaskType = taskType
}

func (a *InMemoryAgent) TemplateSent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.templateSent
}
func (a *InMemoryAgent) SetTemplateSent(sent bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.templateSent = sent
}

// --- Identity ---

func (a *InMemoryAgent) Provider() string { return a.provider }
func (a *InMemoryAgent) Model() string    { return a.model }

// --- Logger ---

func (a *InMemoryAgent) Info(msg string, args ...any)  { a.log("INFO", msg, args...) }
func (a *InMemoryAgent) Error(msg string, args ...any) { a.log("ERROR", msg, args...) }

func (a *InMemoryAgent) SessionStart(sessionID, task string) {
	a.log("INFO", fmt.Sprintf("session start: id=%s task=%q", sessionID, task))
}

func (a *InMemoryAgent) WorkflowIteration(iteration int, step checkpoint.WorkflowStep) {
	a.log("INFO", fmt.Sprintf("iteration %d step=%s", iteration, step))
}

func (a *InMemoryAgent) LLMResponse(hasToolCalls bool, contentLen int) {
	a.log("INFO", fmt.Sprintf("llm response: tool_calls=%v content_len=%d", hasToolCalls, contentLen))
}

func (a *InMemoryAgent) Completion(reason string, iterations int) {
	a.log("INFO", fmt.Sprintf("completion: reason=%q iterations=%d", reason, iterations))
}

func (a *InMemoryAgent) log(level, msg string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, fmt.Sprintf("%s %s %v", level, msg, args))
}

// --- Templates ---

func (a *InMemoryAgent) Load(name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.templates[name]
	if !ok {
		return "", fmt.Errorf("agentctx: template %q not registered", name)
	}
	return body, nil
}

func (a *InMemoryAgent) Render(template string, vars []TemplateVar) (string, error) {
	out := template
	for _, v := range vars {
		out = replaceAll(out, "{{"+v.Name+"}}", v.Value)
	}
	return out, nil
}

func replaceAll(s, old, new string) string {
	for {
		idx := indexOf(s, old)
		if idx < 0 {
			return s
		}
		s = s[:idx] + new + s[idx+len(old):]
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// --- Tools ---

func (a *InMemoryAgent) Schemas(excludeNames ...string) []ToolSchema {
	a.mu.Lock()
	defer a.mu.Unlock()
	excluded := make(map[string]bool, len(excludeNames))
	for _, n := range excludeNames {
		excluded[n] = true
	}
	out := make([]ToolSchema, 0, len(a.tools))
	for name, schema := range a.tools {
		if excluded[name] {
			continue
		}
		out = append(out, schema)
	}
	return out
}

func (a *InMemoryAgent) Execute(ctx context.Context, calls []checkpoint.ToolCall) []ToolResult {
	a.mu.Lock()
	executor := a.executor
	a.mu.Unlock()

	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		if executor == nil {
			results = append(results, ToolResult{ID: call.ID, Name: call.Name, Success: false, Content: "no tool executor registered"})
			continue
		}
		results = append(results, executor(ctx, call))
	}
	return results
}

// --- CheckpointUtilities ---

func (a *InMemoryAgent) EstimateTokens(content string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.estimateTokensLocked(content)
}

func (a *InMemoryAgent) estimateTokensLocked(content string) int {
	return (len(content) + 3) / 4
}

func (a *InMemoryAgent) SanitizedEnvSnapshot() map[string]string {
	a.mu.Lock()
	filter := a.filterEnv
	a.mu.Unlock()

	if !filter {
		out := make(map[string]string)
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				out[k] = v
			}
		}
		return out
	}

	out := make(map[string]string, len(allowedEnvVars))
	for _, key := range allowedEnvVars {
		if v, ok := os.LookupEnv(key); ok {
			out[key] = v
		}
	}
	return out
}

func (a *InMemoryAgent) SystemInfo() map[string]string {
	return map[string]string{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
		"pid":        strconv.Itoa(os.Getpid()),
	}
}

func (a *InMemoryAgent) CheckpointConfigSnapshot() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.cfg))
	for k, v := range a.cfg {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// --- Turns ---

func (a *InMemoryAgent) StartTurn(ctx context.Context) context.Context {
	return context.WithValue(ctx, turnKey{}, uuid.NewString())
}

func (a *InMemoryAgent) EndTurn(ctx context.Context) {}

func (a *InMemoryAgent) CurrentTurnID(ctx context.Context) string {
	id, _ := ctx.Value(turnKey{}).(string)
	return id
}

// --- LLMHelpers ---

// submitTool and completionKeywords are handled by the orchestrator, not
// here; ParseResponse only separates tool-call-shaped text from plain text.
func (a *InMemoryAgent) ParseResponse(raw string) (GenerateResult, error) {
	if calls, ok := a.ExtractToolCalls(raw); ok {
		return GenerateResult{ToolCalls: calls}, nil
	}
	return GenerateResult{Content: raw}, nil
}

// ExtractToolCalls recognizes the single literal form
// "TOOL_CALL:<name>:<arguments>" — a minimal convention for the in-memory
// reference agent; a real LLM client parses its provider's native tool-call
// envelope instead of text sniffing.
func (a *InMemoryAgent) ExtractToolCalls(raw string) ([]checkpoint.ToolCall, bool) {
	const prefix = "TOOL_CALL:"
	if len(raw) < len(prefix) || raw[:len(prefix)] != prefix {
		return nil, false
	}
	rest := raw[len(prefix):]
	idx := indexOf(rest, ":")
	if idx < 0 {
		return nil, false
	}
	return []checkpoint.ToolCall{{
		ID:        "call_" + uuid.NewString(),
		Name:      rest[:idx],
		Arguments: rest[idx+1:],
	}}, true
}

var _ Agent = (*InMemoryAgent)(nil)
