// Package models holds the persistence-shaped value types shared by the
// store, evaluator, llm, and tasker packages.
package models

import "time"

// User is an authentication identity. The tasker never mutates Users; it
// only reads them through the admin seeder's idempotency check.
type User struct {
	Login        string
	Email        string
	PasswordHash string
	IsAdmin      bool
}

// TestCase is the evaluation contract a Test's payload decodes into.
type TestCase struct {
	Task          string   `json:"task"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Test is a stored prompt plus its evaluation contract and target model.
type Test struct {
	ID          int64
	Model       string
	Payload     string // canonical JSON encoding of TestCase
	IsActive    bool
	TotalTokens *int64 // nil when the uncompressed token count is unknown
}

// Case decodes the Test's canonical payload into a TestCase.
func (t Test) Case() (TestCase, error) {
	return decodeTestCase(t.Payload)
}

// Attempt is a user-submitted (compressing_prompt, compression_model) pair.
type Attempt struct {
	ID                       int64
	Timestamp                time.Time
	CompressingPrompt        string
	Model                    string
	Login                    string
	AverageCompressionRatio  *float64 // nil until the attempt finalizes
}

// Done reports whether the attempt has already been finalized.
func (a Attempt) Done() bool {
	return a.AverageCompressionRatio != nil
}

// ResultStatus is the three-value TestResult lifecycle state.
type ResultStatus string

const (
	StatusPending ResultStatus = "pending"
	StatusValid   ResultStatus = "valid"
	StatusFailed  ResultStatus = "failed"
)

// TestResult is the outcome of running one attempt against one test, and
// also the lock object that enforces at-most-one-writer semantics.
type TestResult struct {
	AttemptID        int64
	TestID           int64
	Status           ResultStatus
	CompressedPrompt *string
	CompressionRatio *float64
	RequestJSON      *string
	LastModified      time.Time
}
