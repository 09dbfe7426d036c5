package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/dream"
	"github.com/becomeliminal/affect-memory/facts"
	"github.com/becomeliminal/affect-memory/memory"
)

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	require.NoError(t, RootCmd.Execute(), out.String())
	return out.Bytes()
}

func TestCLI_MemoryLifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AFFECT_DIMENSIONS", "64")
	t.Setenv("AFFECT_TIMEZONE", "UTC")
	t.Setenv("AFFECT_LOG_LEVEL", "error")
	store := "--store=" + filepath.Join(dir, "memories")
	ledger := "--facts=" + filepath.Join(dir, "facts.db")

	var rec memory.Record
	require.NoError(t, json.Unmarshal(execute(t, "store", store, ledger,
		"--importance=0.9", "--kind=raw", "--at=2026-02-03T04:05:06Z", "--emotion=joy=0.5",
		"User: my cat is called Miso"), &rec))
	assert.Equal(t, "[2026-02-03 04:05:06] User: my cat is called Miso", rec.Text)
	assert.InDelta(t, 0.5, rec.Emotions["joy"], 1e-9)

	var hits []memory.ScoredRecord
	require.NoError(t, json.Unmarshal(execute(t, "recall", store, ledger, "--top=3", "what is my cat called?"), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, rec.ID, hits[0].ID)

	var scanned []memory.Record
	require.NoError(t, json.Unmarshal(execute(t, "scan", store, ledger, "--kind=raw"), &scanned))
	require.Len(t, scanned, 1)
	assert.Equal(t, int64(1), scanned[0].AccessCount)

	var sum dream.Summary
	require.NoError(t, json.Unmarshal(execute(t, "dream", store, ledger), &sum))
	assert.Equal(t, 1, sum.Scanned)

	execute(t, "rm", store, ledger, rec.ID)
	require.NoError(t, json.Unmarshal(execute(t, "scan", store, ledger, "--kind="), &scanned))
	assert.Empty(t, scanned)
}

func TestCLI_Facts(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AFFECT_LOG_LEVEL", "error")
	ledger := "--facts=" + filepath.Join(dir, "facts.db")

	execute(t, "fact", "set", ledger, "--provenance=user", "user_name", "Ada")
	var res map[string]any
	require.NoError(t, json.Unmarshal(execute(t, "fact", "set", ledger, "--provenance=dream", "user_name", "Bob"), &res))
	assert.Equal(t, false, res["written"])

	var got map[string]string
	require.NoError(t, json.Unmarshal(execute(t, "fact", "get", ledger, "user_name"), &got))
	assert.Equal(t, map[string]string{"user_name": "Ada"}, got)

	var all []facts.Fact
	require.NoError(t, json.Unmarshal(execute(t, "fact", "get", ledger), &all))
	require.Len(t, all, 1)

	require.NoError(t, json.Unmarshal(execute(t, "fact", "relevant", ledger, "hello"), &got))
	assert.Equal(t, "Ada", got["user_name"])
}
