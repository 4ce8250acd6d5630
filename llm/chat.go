/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/utils"
	"github.com/cloudwego/agentdoc/llm/prompt"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ Generator = (*ChatGenerator)(nil)

// ChatGenerator sends one user message (plus an optional system prompt) to
// a chat model and returns the reply text.
type ChatGenerator struct {
	name      string
	model     ChatModel
	sysPrompt prompt.Prompt
	retries   int           // transport-level retries
	timeout   time.Duration // per request
	wait      func(attempt int) time.Duration
}

type ChatGeneratorOptions struct {
	Name      string
	SysPrompt prompt.Prompt
	Retries   int
	Timeout   time.Duration
}

func NewChatGenerator(m ChatModel, opts ChatGeneratorOptions) *ChatGenerator {
	if opts.Timeout == 0 {
		opts.Timeout = 600 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "agentdoc"
	}
	return &ChatGenerator{
		name:      opts.Name,
		model:     m,
		sysPrompt: opts.SysPrompt,
		retries:   opts.Retries,
		timeout:   opts.Timeout,
		wait: func(attempt int) time.Duration {
			// 1s, 2s, 4s... capped at 10s
			return min(time.Duration(1<<uint(attempt-1))*time.Second, 10*time.Second)
		},
	}
}

// NewChatGeneratorFromConfig builds the backend for m and wraps it.
func NewChatGeneratorFromConfig(ctx context.Context, m ModelConfig, sysPrompt prompt.Prompt) (*ChatGenerator, error) {
	cm, err := NewChatModel(ctx, m)
	if err != nil {
		return nil, utils.WrapError(err, "create %s chat model", m.APIType)
	}
	m = m.withDefaults()
	return NewChatGenerator(cm, ChatGeneratorOptions{
		Name:      m.Name,
		SysPrompt: sysPrompt,
		Retries:   m.Retries,
		Timeout:   m.Timeout,
	}), nil
}

func (g *ChatGenerator) messages(input string) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if g.sysPrompt != nil {
		if sys := g.sysPrompt.String(); sys != "" {
			msgs = append(msgs, schema.SystemMessage(sys))
		}
	}
	return append(msgs, schema.UserMessage(input))
}

// Call implements Generator. Network failures are retried up to the
// configured count; other errors are returned at once.
func (g *ChatGenerator) Call(ctx context.Context, input string) (string, error) {
	log.Debug("[User] %s", input)
	msgs := g.messages(input)
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      g.name,
		Type:      "ChatGenerator",
		Component: components.ComponentOfChatModel,
	}, CallbackHandler{})

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			log.Info("Retrying LLM call (attempt %d/%d)...", attempt+1, g.retries+1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.wait(attempt)):
			}
		}

		out, err := g.generate(ctx, msgs)
		if err == nil {
			if strings.TrimSpace(out) == "" {
				return "", fmt.Errorf("empty response from model %s", g.name)
			}
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return "", utils.WrapError(err, "ChatGenerator RoundTrip error")
		}
		log.Info("Retryable error occurred (attempt %d/%d): %v", attempt+1, g.retries+1, err)
	}
	return "", utils.WrapError(fmt.Errorf("failed after %d tries: %w", g.retries+1, lastErr), "ChatGenerator RoundTrip error")
}

func (g *ChatGenerator) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.model.Generate(attemptCtx, msgs)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

func isRetryable(err error) bool {
	s := err.Error()
	for _, frag := range []string{
		"timeout",
		"connection reset",
		"connection refused",
		"operation timed out",
		"context deadline exceeded",
		"read tcp",
		"write tcp",
		"EOF",
		"429",
		"502",
		"503",
	} {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}

// CallbackHandler logs chat model activity.
type CallbackHandler struct{}

var _ callbacks.Handler = (*CallbackHandler)(nil)

func (h CallbackHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if in := model.ConvCallbackInput(input); in != nil {
		log.Debug("<OnStart> %s: %d message(s)", info.Name, len(in.Messages))
	}
	return ctx
}

func (h CallbackHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if out := model.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
		log.Debug("<OnEnd> %s: prompt=%d completion=%d total=%d tokens",
			info.Name, out.TokenUsage.PromptTokens, out.TokenUsage.CompletionTokens, out.TokenUsage.TotalTokens)
	}
	return ctx
}

func (h CallbackHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	log.Error("<OnError> %s: %v", info.Name, err)
	return ctx
}

func (h CallbackHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (h CallbackHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}
