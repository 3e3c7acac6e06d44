// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator implements the Workflow Orchestrator: the main agent
// loop, in both iterative and streaming form, driven over an Agent Context.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haldane-labs/checkpointd/internal/agentctx"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/sessionmgr"
)

const classifyTaskTool = "classify_task"
const submitTool = "submit"

var completionKeywords = []string{"TASK_COMPLETED", "COMPLETED"}

// Generator produces one non-streaming LLM turn.
type Generator interface {
	Generate(ctx context.Context, agent agentctx.Agent, schemas []agentctx.ToolSchema) (agentctx.GenerateResult, error)
}

// Chunk is one piece of a streamed LLM response.
type Chunk struct {
	Text string
	Done bool
}

// ChunkStream yields the provider's output one Chunk at a time; Next is called
// until it reports Done, and the chunks' text is then assembled into a
// GenerateResult.
type ChunkStream interface {
	Next(ctx context.Context) (Chunk, error)
}

// StreamGenerator opens a chunk stream for one LLM turn.
type StreamGenerator interface {
	GenerateStream(ctx context.Context, agent agentctx.Agent, schemas []agentctx.ToolSchema) (ChunkStream, error)
}

// Options configures one orchestrator run.
type Options struct {
	MaxIterations          int
	MaxHistory             int
	MaxRetries             int
	RequestIntervalSeconds float64
}

// Result is what RunIterative/RunStreaming return once the loop stops.
type Result struct {
	Success    bool
	Reason     string
	Iterations int
}

// Orchestrator drives the agent loop for one session.
type Orchestrator struct {
	sessions  *sessionmgr.Manager
	gen       Generator
	streamGen StreamGenerator
	opts      Options
	sleep     func(time.Duration)
	throttle  *rate.Limiter
}

// New returns an Orchestrator for iterative runs. Use WithStreaming to also
// enable RunStreaming.
func New(sessions *sessionmgr.Manager, gen Generator, opts Options) *Orchestrator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	o := &Orchestrator{sessions: sessions, gen: gen, opts: opts, sleep: time.Sleep}
	if opts.RequestIntervalSeconds > 0 {
		o.throttle = rate.NewLimiter(rate.Every(time.Duration(opts.RequestIntervalSeconds*float64(time.Second))), 1)
	}
	return o
}

// waitForThrottle blocks until the request-interval limiter admits the next
// call, or ctx is cancelled first — unlike a bare time.Sleep, cancellation
// during the wait returns promptly instead of sleeping it out.
func (o *Orchestrator) waitForThrottle(ctx context.Context) error {
	if o.throttle == nil {
		return nil
	}
	return o.throttle.Wait(ctx)
}

// WithStreaming attaches a StreamGenerator so RunStreaming can be used.
func (o *Orchestrator) WithStreaming(streamGen StreamGenerator) *Orchestrator {
	o.streamGen = streamGen
	return o
}

// withSleep overrides the retry-backoff sleep function, for tests.
func (o *Orchestrator) withSleep(fn func(time.Duration)) *Orchestrator {
	o.sleep = fn
	return o
}

// RunIterative drives the non-streaming loop.
func (o *Orchestrator) RunIterative(ctx context.Context, agent agentctx.Agent) (Result, error) {
	for iter := agent.Iteration(); iter < o.opts.MaxIterations; iter++ {
		agent.SetIteration(iter)
		agent.WorkflowIteration(iter, agent.WorkflowStep())

		if o.sessions.ShouldCreateCheckpoint(iter) {
			if _, err := o.sessions.CreateCheckpoint(ctx, agent); err != nil {
				return o.stopSession(ctx, agent, fmt.Sprintf("checkpoint failed: %v", err), false, iter), err
			}
		}

		agent.TrimHistory(o.opts.MaxHistory)
		if err := validateMessages(agent); err != nil {
			return o.stopSession(ctx, agent, fmt.Sprintf("invalid message structure: %v", err), false, iter), err
		}

		if err := o.waitForThrottle(ctx); err != nil {
			return o.stopSession(ctx, agent, fmt.Sprintf("throttle wait: %v", err), false, iter), err
		}

		result, err := o.generateWithRetry(ctx, agent)
		if err != nil {
			return o.stopSession(ctx, agent, fmt.Sprintf("generation failed: %v", err), false, iter), err
		}
		agent.LLMResponse(len(result.ToolCalls) > 0, len(result.Content))

		if done, res := o.dispatch(ctx, agent, result, iter); done {
			return res, nil
		}
	}
	return o.stopSession(ctx, agent, "Maximum iterations reached", false, o.opts.MaxIterations), nil
}

// RunStreaming drives the streaming loop: the iteration counter only
// advances after a successful API call, and the max is enforced after that
// call completes rather than before it starts.
func (o *Orchestrator) RunStreaming(ctx context.Context, agent agentctx.Agent) (Result, error) {
	if o.streamGen == nil {
		return Result{}, fmt.Errorf("orchestrator: RunStreaming called with no StreamGenerator configured")
	}

	iter := agent.Iteration()
	for {
		agent.WorkflowIteration(iter, agent.WorkflowStep())

		if o.sessions.ShouldCreateCheckpoint(iter) {
			if _, err := o.sessions.CreateCheckpoint(ctx, agent); err != nil {
				return o.stopSession(ctx, agent, fmt.Sprintf("checkpoint failed: %v", err), false, iter), err
			}
		}

		agent.TrimHistory(o.opts.MaxHistory)
		if err := validateMessages(agent); err != nil {
			return o.stopSession(ctx, agent, fmt.Sprintf("invalid message structure: %v", err), false, iter), err
		}

		if err := o.waitForThrottle(ctx); err != nil {
			return o.stopSession(ctx, agent, fmt.Sprintf("throttle wait: %v", err), false, iter), err
		}

		result, err := o.generateStreamWithRetry(ctx, agent)
		if err != nil {
			return o.stopSession(ctx, agent, fmt.Sprintf("generation failed: %v", err), false, iter), err
		}

		iter++
		agent.SetIteration(iter)
		agent.LLMResponse(len(result.ToolCalls) > 0, len(result.Content))

		if done, res := o.dispatch(ctx, agent, result, iter); done {
			return res, nil
		}
		if iter > o.opts.MaxIterations {
			return o.stopSession(ctx, agent, "Maximum iterations reached", false, iter), nil
		}
	}
}

// dispatch handles a generation result — tool-call or plain-content — and
// reports whether the loop should stop.
func (o *Orchestrator) dispatch(ctx context.Context, agent agentctx.Agent, result agentctx.GenerateResult, iter int) (bool, Result) {
	if len(result.ToolCalls) > 0 {
		agent.AppendAssistantWithToolCalls(result.Content, result.ToolCalls)
		toolResults := agent.Execute(ctx, result.ToolCalls)
		submitted := false
		for _, tr := range toolResults {
			agent.AppendTool(tr.ID, tr.Name, tr.Content)
			if strings.EqualFold(tr.Name, submitTool) {
				submitted = true
			}
		}
		if submitted {
			return true, o.stopSession(ctx, agent, "submit tool invoked", true, iter)
		}
		return false, Result{}
	}

	agent.AppendAssistant(result.Content)
	if containsCompletionKeyword(result.Content) {
		return true, o.stopSession(ctx, agent, "completion keyword detected", true, iter)
	}
	agent.AppendUser("Error: no tool calls")
	return false, Result{}
}

func containsCompletionKeyword(content string) bool {
	upper := strings.ToUpper(content)
	for _, kw := range completionKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// generateWithRetry attempts generation up to MaxRetries times with
// exponential backoff (2^attempt seconds), excluding classify_task from the
// exposed tool schema once classification has completed.
func (o *Orchestrator) generateWithRetry(ctx context.Context, agent agentctx.Agent) (agentctx.GenerateResult, error) {
	var lastErr error
	for attempt := 0; attempt < o.opts.MaxRetries; attempt++ {
		result, err := o.gen.Generate(ctx, agent, o.schemasFor(agent))
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt+1 >= o.opts.MaxRetries {
			break
		}
		o.sleep(time.Duration(math.Pow(2, float64(attempt))) * time.Second)
	}
	return agentctx.GenerateResult{}, lastErr
}

// generateStreamWithRetry consumes a chunk stream to a terminal result,
// retrying indefinitely on transient errors.
func (o *Orchestrator) generateStreamWithRetry(ctx context.Context, agent agentctx.Agent) (agentctx.GenerateResult, error) {
	for {
		stream, err := o.streamGen.GenerateStream(ctx, agent, o.schemasFor(agent))
		if err != nil {
			if isTransient(err) {
				o.sleep(5 * time.Second)
				continue
			}
			return agentctx.GenerateResult{}, err
		}

		result, err := accumulate(ctx, agent, stream)
		if err != nil {
			if isTransient(err) {
				o.sleep(5 * time.Second)
				continue
			}
			return agentctx.GenerateResult{}, err
		}
		return result, nil
	}
}

func accumulate(ctx context.Context, agent agentctx.Agent, stream ChunkStream) (agentctx.GenerateResult, error) {
	var text strings.Builder
	for {
		chunk, err := stream.Next(ctx)
		if err != nil {
			return agentctx.GenerateResult{}, err
		}
		text.WriteString(chunk.Text)
		if chunk.Done {
			break
		}
	}
	return agent.ParseResponse(text.String())
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "api timeout") || strings.Contains(msg, "rate limit")
}

func (o *Orchestrator) schemasFor(agent agentctx.Agent) []agentctx.ToolSchema {
	if agent.ClassificationDone() {
		return agent.Schemas(classifyTaskTool)
	}
	return agent.Schemas()
}

// validateMessages fails fast on a broken conversation: every tool message
// must reference a tool call id the conversation actually issued.
func validateMessages(agent agentctx.Agent) error {
	issued := map[string]bool{}
	for _, msg := range agent.Messages() {
		if msg.Role == checkpoint.RoleAssistant {
			for _, tc := range msg.ToolCalls {
				issued[tc.ID] = true
			}
		}
		if msg.Role == checkpoint.RoleTool && msg.ToolCallID != "" && !issued[msg.ToolCallID] {
			return fmt.Errorf("tool message references unknown tool_call_id %q", msg.ToolCallID)
		}
	}
	return nil
}

// stopSession flips the running flag, ends the turn, finalizes checkpoint
// metadata, logs completion, and returns a human-readable reason.
func (o *Orchestrator) stopSession(ctx context.Context, agent agentctx.Agent, reason string, success bool, iterations int) Result {
	agent.SetRunning(false)
	agent.EndTurn(ctx)

	if success {
		agent.SetWorkflowStep(checkpoint.StepComplete)
	} else {
		agent.SetWorkflowStep(checkpoint.StepError)
	}
	if o.sessions.CurrentSession() != nil {
		_, _ = o.sessions.CreateCheckpoint(ctx, agent)
	}

	agent.Completion(reason, iterations)
	return Result{Success: success, Reason: reason, Iterations: iterations}
}
