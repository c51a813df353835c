package tracer

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestTracer_StartTurnWritesEntryWithTurnID(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	turnID := tr.StartTurn("Sage", 10, "garden", "claude", "you are in the garden", nil)
	assert.Len(t, turnID, 8)

	lines := readLines(t, filepath.Join(dir, "Sage.jsonl"))
	require.Len(t, lines, 1)
	assert.Equal(t, "turn_start", lines[0]["event"])
	assert.Equal(t, turnID, lines[0]["turn_id"])
	assert.Equal(t, float64(10), lines[0]["tick"])
}

func TestTracer_EndTurnClearsTurnID(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	turnID := tr.StartTurn("Sage", 1, "garden", "claude", "ctx", nil)
	tr.EndTurn("Sage", "Sage waters the plants.", nil, 120, phases.TurnUsage{InputTokens: 50, OutputTokens: 30})
	tr.LogText("Sage", "after the turn")

	lines := readLines(t, filepath.Join(dir, "Sage.jsonl"))
	require.Len(t, lines, 3)
	assert.Equal(t, "turn_end", lines[1]["event"])
	assert.Equal(t, turnID, lines[1]["turn_id"])
	assert.Equal(t, "Sage waters the plants.", lines[1]["narrative"])
	assert.Equal(t, "", lines[2]["turn_id"])
}

func TestTracer_LogToolResultTruncatesLongContent(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	tr.LogToolResult("Sage", "tool-1", string(long), false)

	lines := readLines(t, filepath.Join(dir, "Sage.jsonl"))
	require.Len(t, lines, 1)
	assert.Len(t, lines[0]["result"].(string), toolResultTruncateLen)
}

func TestTracer_LogTokenUpdateComputesPercent(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	tr.LogTokenUpdate("Sage", 75_000, 150_000)

	lines := readLines(t, filepath.Join(dir, "Sage.jsonl"))
	require.Len(t, lines, 1)
	assert.Equal(t, float64(50), lines[0]["percent"])
}

func TestTracer_LogTokenUpdateCapsPercentAt100(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	tr.LogTokenUpdate("Sage", 200_000, 150_000)

	lines := readLines(t, filepath.Join(dir, "Sage.jsonl"))
	require.Len(t, lines, 1)
	assert.Equal(t, float64(100), lines[0]["percent"])
}

func TestTracer_LogInterpretCompleteIncludesObservations(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	tr.LogInterpretComplete("Sage", 5, interpreter.AgentTurnResult{
		MoodExpressed: "content", WantsToRest: true, ActionsDescribed: []string{"watered the plants"},
	})

	lines := readLines(t, filepath.Join(dir, "Sage.jsonl"))
	require.Len(t, lines, 1)
	assert.Equal(t, "content", lines[0]["mood"])
	assert.Equal(t, true, lines[0]["wants_to_rest"])
}

func TestTracer_SubscribeReceivesEvents(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	ch, unsubscribe := tr.Subscribe(4)
	defer unsubscribe()

	tr.LogText("Sage", "hello")

	select {
	case event := <-ch:
		assert.Equal(t, EventText, event.Type)
		assert.Equal(t, "hello", event.Data["content"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber event")
	}
}

func TestTracer_UnsubscribeStopsDelivery(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	require.NoError(t, err)
	defer tr.Close()

	ch, unsubscribe := tr.Subscribe(4)
	unsubscribe()

	tr.LogText("Sage", "hello")

	select {
	case <-ch:
		t.Fatal("expected no event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}
