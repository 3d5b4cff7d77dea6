package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klntsky/compression-bench/internal/canon"
)

func TestReadIngestRecords_ParsesArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests.json")
	body := `[
		{"model": "gpt-4o-mini", "test_case": {"task": "t1", "options": ["a", "b"], "correct_answer": "a"}, "is_active": true},
		{"model": "gpt-4o-mini", "test_case": {"task": "t2", "options": ["a", "b"], "correct_answer": "b"}, "is_active": false}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	records, err := readIngestRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "gpt-4o-mini", records[0].Model)
	assert.Equal(t, "t1", records[0].TestCase.Task)
	assert.True(t, records[0].IsActive)
	assert.False(t, records[1].IsActive)
}

func TestReadIngestRecords_MissingFileErrors(t *testing.T) {
	_, err := readIngestRecords(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestIngestRecord_PayloadCanonicalizationIsStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests.json")
	// Same test case, keys in a different order, should canonicalize to
	// the same payload so UpsertTests dedupes them.
	body := `[
		{"test_case": {"task": "t1", "options": ["a", "b"], "correct_answer": "a"}, "model": "m1"},
		{"test_case": {"correct_answer": "a", "options": ["a", "b"], "task": "t1"}, "model": "m1"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	records, err := readIngestRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	p1, err := canon.MarshalString(records[0].TestCase)
	require.NoError(t, err)
	p2, err := canon.MarshalString(records[1].TestCase)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
