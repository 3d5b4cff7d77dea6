// Package llm implements the single external collaborator the tasker
// depends on: the OpenRouter-compatible chat-completions endpoint,
// reached through github.com/sashabaranov/go-openai configured against
// an OpenAI-compatible client at a configurable base URL.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/klntsky/compression-bench/internal/canon"
	"github.com/sashabaranov/go-openai"
)

const answerFunctionName = "answer_question"

// Usage mirrors the provider's usage counters.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Add accumulates usage counters across pipeline stages or evaluation
// iterations.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// GatewayError wraps any failure from the chat-completions endpoint:
// transport-level errors, a missing tool call, or missing usage. All are
// treated identically by the evaluator.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("llm gateway: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Config configures a Gateway. BaseURL, APIKey, HTTPReferer and XTitle
// correspond directly to the OPENROUTER_* environment variables.
// RequestTimeout bounds every call's round trip and is applied to the
// shared HTTP client.
type Config struct {
	BaseURL        string
	APIKey         string
	HTTPReferer    string
	XTitle         string
	RequestTimeout time.Duration
}

// Gateway is a single stateless client over the chat-completions endpoint.
// Parallelism across calls is the caller's responsibility.
type Gateway struct {
	client *openai.Client
}

// New builds a Gateway. Identifying headers (referrer, title) are attached
// through a RoundTripper wrapper decorating the shared *http.Client.
func New(cfg Config) *Gateway {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	oaCfg.BaseURL = cfg.BaseURL
	oaCfg.HTTPClient = &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: identifyingTransport{
			base:        http.DefaultTransport,
			httpReferer: cfg.HTTPReferer,
			xTitle:      cfg.XTitle,
		},
	}
	return &Gateway{client: openai.NewClientWithConfig(oaCfg)}
}

type identifyingTransport struct {
	base        http.RoundTripper
	httpReferer string
	xTitle      string
}

func (t identifyingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.httpReferer != "" {
		req.Header.Set("HTTP-Referer", t.httpReferer)
	}
	if t.xTitle != "" {
		req.Header.Set("X-Title", t.xTitle)
	}
	return t.base.RoundTrip(req)
}

// AnswerWithTool submits a two-message conversation forcing the model to
// invoke answer_question, constrained to the supplied options, and returns
// the chosen answer, the usage counters the provider reported for this
// call, and a canonical serialization of the outbound request.
func (g *Gateway) AnswerWithTool(ctx context.Context, model, system, user string, options []string) (answer string, usage Usage, requestJSON []byte, err error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Tools: []openai.Tool{answerTool(options)},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: answerFunctionName},
		},
	}

	requestJSON, canonErr := canon.Marshal(req)
	if canonErr != nil {
		return "", Usage{}, nil, &GatewayError{Op: "answer_with_tool", Err: canonErr}
	}

	resp, callErr := g.client.CreateChatCompletion(ctx, req)
	if callErr != nil {
		return "", Usage{}, requestJSON, &GatewayError{Op: "answer_with_tool", Err: callErr}
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return "", Usage{}, requestJSON, &GatewayError{Op: "answer_with_tool", Err: fmt.Errorf("no tool call in response")}
	}
	if resp.Usage.TotalTokens == 0 {
		return "", Usage{}, requestJSON, &GatewayError{Op: "answer_with_tool", Err: fmt.Errorf("missing usage in response")}
	}

	call := resp.Choices[0].Message.ToolCalls[0]
	var args struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return "", Usage{}, requestJSON, &GatewayError{Op: "answer_with_tool", Err: fmt.Errorf("malformed tool arguments: %w", err)}
	}

	return args.Answer, Usage{
		PromptTokens:     int64(resp.Usage.PromptTokens),
		CompletionTokens: int64(resp.Usage.CompletionTokens),
		TotalTokens:      int64(resp.Usage.TotalTokens),
	}, requestJSON, nil
}

// Compress submits a two-message conversation (system=compressingPrompt,
// user=task) and returns the model's free-form reply as the compressed
// task.
func (g *Gateway) Compress(ctx context.Context, model, compressingPrompt, task string) (compressedTask string, usage Usage, requestJSON []byte, err error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: compressingPrompt},
			{Role: openai.ChatMessageRoleUser, Content: task},
		},
	}

	requestJSON, canonErr := canon.Marshal(req)
	if canonErr != nil {
		return "", Usage{}, nil, &GatewayError{Op: "compress", Err: canonErr}
	}

	resp, callErr := g.client.CreateChatCompletion(ctx, req)
	if callErr != nil {
		return "", Usage{}, requestJSON, &GatewayError{Op: "compress", Err: callErr}
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", Usage{}, requestJSON, &GatewayError{Op: "compress", Err: fmt.Errorf("empty compression reply")}
	}
	if resp.Usage.TotalTokens == 0 {
		return "", Usage{}, requestJSON, &GatewayError{Op: "compress", Err: fmt.Errorf("missing usage in response")}
	}

	return resp.Choices[0].Message.Content, Usage{
		PromptTokens:     int64(resp.Usage.PromptTokens),
		CompletionTokens: int64(resp.Usage.CompletionTokens),
		TotalTokens:      int64(resp.Usage.TotalTokens),
	}, requestJSON, nil
}

func answerTool(options []string) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        answerFunctionName,
			Description: "Answer the question with exactly one of the provided options.",
			Strict:      true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"answer": map[string]any{
						"type": "string",
						"enum": options,
					},
				},
				"required":             []string{"answer"},
				"additionalProperties": false,
			},
		},
	}
}
