// Package evaluator drives the two-stage compress -> re-evaluate pipeline
// against the LLM gateway. The evaluator never writes to storage and is
// safe to call concurrently for distinct inputs.
package evaluator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/klntsky/compression-bench/internal/canon"
	"github.com/klntsky/compression-bench/internal/llm"
	"github.com/klntsky/compression-bench/internal/models"
)

// Gateway is the subset of llm.Gateway the evaluator depends on, so tests
// can substitute a stub without standing up an HTTP server.
type Gateway interface {
	AnswerWithTool(ctx context.Context, model, system, user string, options []string) (answer string, usage llm.Usage, requestJSON []byte, err error)
	Compress(ctx context.Context, model, compressingPrompt, task string) (compressedTask string, usage llm.Usage, requestJSON []byte, err error)
}

// Evaluator bundles a Gateway with the evaluation policy.
type Evaluator struct {
	gateway Gateway
}

// New builds an Evaluator over the given gateway.
func New(gateway Gateway) *Evaluator {
	return &Evaluator{gateway: gateway}
}

// EvaluationResult is the outcome of running answer_with_tool up to
// `attempts` times against the same test case.
type EvaluationResult struct {
	Passed      bool
	Usage       llm.Usage
	RequestJSON []byte
}

// EvaluatePrompt iterates answer_with_tool up to attempts times. It stops
// and returns passed=false on the first iteration that errors or whose
// answer doesn't match test_case.CorrectAnswer (case-insensitive, trimmed).
// It never returns an error to the caller — every failure mode degrades to
// a failed EvaluationResult.
func (e *Evaluator) EvaluatePrompt(ctx context.Context, tc models.TestCase, model string, attempts int) EvaluationResult {
	if attempts < 1 {
		attempts = 1
	}

	var usage llm.Usage
	var lastRequest []byte

	for i := 0; i < attempts; i++ {
		answer, iterUsage, requestJSON, err := e.gateway.AnswerWithTool(ctx, model, answerSystemPrompt(), tc.Task, tc.Options)
		usage = usage.Add(iterUsage)
		if requestJSON != nil {
			lastRequest = requestJSON
		}

		if err != nil {
			return EvaluationResult{Passed: false, Usage: usage, RequestJSON: lastRequest}
		}
		if !answersMatch(answer, tc.CorrectAnswer) {
			return EvaluationResult{Passed: false, Usage: usage, RequestJSON: lastRequest}
		}
	}

	return EvaluationResult{Passed: true, Usage: usage, RequestJSON: lastRequest}
}

func answersMatch(got, want string) bool {
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}

func answerSystemPrompt() string {
	return "Answer the following question by calling answer_question with exactly one of the allowed options."
}

// TestCompressionResult bundles the outcome of EvaluateCompression for one
// test.
type TestCompressionResult struct {
	Original         models.TestCase
	CompressedTask   string
	CompressionUsage llm.Usage
	CompressionRatio float64
	Evaluation       EvaluationResult
	RequestJSON      []byte
}

// EvaluateCompression executes the two-phase pipeline for one test:
// compress the task, substitute it into a derived test case, evaluate
// once against the evaluation model, and compute the compression ratio
//.
func (e *Evaluator) EvaluateCompression(
	ctx context.Context,
	tc models.TestCase,
	compressingPrompt string,
	compressionModel string,
	evaluationModel string,
	uncompressedTotalTokens int64,
) (TestCompressionResult, error) {
	compressedTask, compressionUsage, compressionRequest, err := e.gateway.Compress(ctx, compressionModel, compressingPrompt, tc.Task)
	if err != nil {
		return TestCompressionResult{}, err
	}

	derived := models.TestCase{
		Task:          compressedTask,
		Options:       tc.Options,
		CorrectAnswer: tc.CorrectAnswer,
	}

	evalResult := e.EvaluatePrompt(ctx, derived, evaluationModel, 1)

	ratio := compressionRatio(uncompressedTotalTokens, evalResult.Usage.TotalTokens)

	combinedRequest, err := combineRequestJSON(compressionRequest, evalResult.RequestJSON)
	if err != nil {
		return TestCompressionResult{}, err
	}

	return TestCompressionResult{
		Original:         tc,
		CompressedTask:   compressedTask,
		CompressionUsage: compressionUsage,
		CompressionRatio: ratio,
		Evaluation:       evalResult,
		RequestJSON:      combinedRequest,
	}, nil
}

// compressionRatio is defined only when the compressed total-token count
// is positive; otherwise it is zero.
func compressionRatio(uncompressedTotalTokens, compressedTotalTokens int64) float64 {
	if compressedTotalTokens <= 0 {
		return 0
	}
	return float64(uncompressedTotalTokens) / float64(compressedTotalTokens)
}

func combineRequestJSON(compressionRequest, evaluationRequest []byte) ([]byte, error) {
	parts := map[string]json.RawMessage{}
	if len(compressionRequest) > 0 {
		parts["compress"] = json.RawMessage(compressionRequest)
	} else {
		parts["compress"] = json.RawMessage("null")
	}
	if len(evaluationRequest) > 0 {
		parts["evaluate"] = json.RawMessage(evaluationRequest)
	} else {
		parts["evaluate"] = json.RawMessage("null")
	}
	return canon.Combine(parts)
}
