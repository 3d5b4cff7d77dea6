package evaluator

import (
	"context"
	"testing"

	"github.com/klntsky/compression-bench/internal/llm"
	"github.com/klntsky/compression-bench/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway is a scripted Gateway: each call to Compress/AnswerWithTool
// pops the next entry off its respective queue.
type stubGateway struct {
	answers []answerCall
	answerI int

	compresses []compressCall
	compressI  int
}

type answerCall struct {
	answer string
	usage  llm.Usage
	req    []byte
	err    error
}

type compressCall struct {
	task  string
	usage llm.Usage
	req   []byte
	err   error
}

func (s *stubGateway) AnswerWithTool(ctx context.Context, model, system, user string, options []string) (string, llm.Usage, []byte, error) {
	c := s.answers[s.answerI]
	s.answerI++
	return c.answer, c.usage, c.req, c.err
}

func (s *stubGateway) Compress(ctx context.Context, model, compressingPrompt, task string) (string, llm.Usage, []byte, error) {
	c := s.compresses[s.compressI]
	s.compressI++
	return c.task, c.usage, c.req, c.err
}

func testCase() models.TestCase {
	return models.TestCase{
		Task:          "What color is the sky on a clear day?",
		Options:       []string{"blue", "green"},
		CorrectAnswer: "blue",
	}
}

func TestEvaluatePrompt_PassesOnMatch(t *testing.T) {
	gw := &stubGateway{answers: []answerCall{
		{answer: "Blue", usage: llm.Usage{TotalTokens: 50}, req: []byte(`{"a":1}`)},
	}}
	e := New(gw)

	result := e.EvaluatePrompt(context.Background(), testCase(), "eval-model", 1)

	assert.True(t, result.Passed)
	assert.Equal(t, int64(50), result.Usage.TotalTokens)
}

func TestEvaluatePrompt_FailsOnMismatch(t *testing.T) {
	gw := &stubGateway{answers: []answerCall{
		{answer: "green", usage: llm.Usage{TotalTokens: 50}, req: []byte(`{}`)},
	}}
	e := New(gw)

	result := e.EvaluatePrompt(context.Background(), testCase(), "eval-model", 1)

	assert.False(t, result.Passed)
}

func TestEvaluatePrompt_FailsOnGatewayError(t *testing.T) {
	gw := &stubGateway{answers: []answerCall{
		{err: &llm.GatewayError{Op: "answer_with_tool"}, usage: llm.Usage{TotalTokens: 10}},
	}}
	e := New(gw)

	result := e.EvaluatePrompt(context.Background(), testCase(), "eval-model", 1)

	assert.False(t, result.Passed)
	assert.Equal(t, int64(10), result.Usage.TotalTokens)
}

func TestEvaluatePrompt_AccumulatesAcrossAttemptsUntilFailure(t *testing.T) {
	gw := &stubGateway{answers: []answerCall{
		{answer: "blue", usage: llm.Usage{TotalTokens: 10}},
		{answer: "green", usage: llm.Usage{TotalTokens: 20}},
		{answer: "blue", usage: llm.Usage{TotalTokens: 30}}, // never reached
	}}
	e := New(gw)

	result := e.EvaluatePrompt(context.Background(), testCase(), "eval-model", 3)

	assert.False(t, result.Passed)
	assert.Equal(t, int64(30), result.Usage.TotalTokens) // 10 + 20, stopped before third call
	assert.Equal(t, 2, gw.answerI)
}

func TestEvaluatePrompt_PassesOnlyWhenAllAttemptsMatch(t *testing.T) {
	gw := &stubGateway{answers: []answerCall{
		{answer: "blue", usage: llm.Usage{TotalTokens: 10}},
		{answer: "blue", usage: llm.Usage{TotalTokens: 10}},
	}}
	e := New(gw)

	result := e.EvaluatePrompt(context.Background(), testCase(), "eval-model", 2)

	assert.True(t, result.Passed)
	assert.Equal(t, int64(20), result.Usage.TotalTokens)
}

func TestEvaluateCompression_HappyPath(t *testing.T) {
	gw := &stubGateway{
		compresses: []compressCall{
			{task: "sky color clear day?", usage: llm.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}, req: []byte(`{"compress":true}`)},
		},
		answers: []answerCall{
			{answer: "blue", usage: llm.Usage{PromptTokens: 25, CompletionTokens: 5, TotalTokens: 50}, req: []byte(`{"evaluate":true}`)},
		},
	}
	e := New(gw)

	result, err := e.EvaluateCompression(context.Background(), testCase(), "Rewrite shorter.", "compress-model", "eval-model", 100)
	require.NoError(t, err)

	assert.Equal(t, "sky color clear day?", result.CompressedTask)
	assert.True(t, result.Evaluation.Passed)
	assert.Equal(t, 2.0, result.CompressionRatio) // 100/50
	assert.Contains(t, string(result.RequestJSON), `"compress"`)
	assert.Contains(t, string(result.RequestJSON), `"evaluate"`)
}

func TestEvaluateCompression_ZeroRatioWhenCompressedTokensZero(t *testing.T) {
	gw := &stubGateway{
		compresses: []compressCall{
			{task: "short", usage: llm.Usage{TotalTokens: 5}},
		},
		answers: []answerCall{
			{answer: "green", err: &llm.GatewayError{Op: "answer_with_tool"}, usage: llm.Usage{TotalTokens: 0}},
		},
	}
	e := New(gw)

	result, err := e.EvaluateCompression(context.Background(), testCase(), "prompt", "cm", "em", 100)
	require.NoError(t, err)

	assert.False(t, result.Evaluation.Passed)
	assert.Equal(t, 0.0, result.CompressionRatio)
}

func TestEvaluateCompression_PropagatesCompressError(t *testing.T) {
	gw := &stubGateway{
		compresses: []compressCall{
			{err: &llm.GatewayError{Op: "compress"}},
		},
	}
	e := New(gw)

	_, err := e.EvaluateCompression(context.Background(), testCase(), "prompt", "cm", "em", 100)
	require.Error(t, err)
}
