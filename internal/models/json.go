package models

import (
	"encoding/json"
	"fmt"
)

func decodeTestCase(payload string) (TestCase, error) {
	var tc TestCase
	if err := json.Unmarshal([]byte(payload), &tc); err != nil {
		return TestCase{}, fmt.Errorf("decode test case payload: %w", err)
	}
	if len(tc.Options) == 0 {
		return TestCase{}, fmt.Errorf("test case payload has no options")
	}
	found := false
	for _, opt := range tc.Options {
		if opt == tc.CorrectAnswer {
			found = true
			break
		}
	}
	if !found {
		return TestCase{}, fmt.Errorf("test case correct_answer %q is not among options", tc.CorrectAnswer)
	}
	return tc, nil
}
