package fsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncInCopiesLocationSharedFiles(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "shared", "workshop"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shared", "workshop", "plans.md"), []byte("blueprint"), 0o644))

	require.NoError(t, vf.SyncIn("Ember", "workshop"))

	data, err := os.ReadFile(filepath.Join(root, "agents", "ember", "shared", "workshop", "plans.md"))
	require.NoError(t, err)
	assert.Equal(t, "blueprint", string(data))
}

func TestSyncInIgnoresLocationsWithNoSharedDirs(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	require.NoError(t, vf.SyncIn("Ember", "unmapped_location"))

	_, err := os.Stat(filepath.Join(root, "agents", "ember", "shared"))
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(root, "agents", "ember", "shared"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSyncOutWritesBackToMasterAndClearsWorkspace(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	agentShared := filepath.Join(root, "agents", "ember", "shared", "workshop")
	require.NoError(t, os.MkdirAll(agentShared, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(agentShared, "notes.md"), []byte("updated"), 0o644))

	require.NoError(t, vf.SyncOut("Ember", "workshop"))

	data, err := os.ReadFile(filepath.Join(root, "shared", "workshop", "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "updated", string(data))

	_, err = os.Stat(filepath.Join(root, "agents", "ember", "shared"))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncOutWithNoWorkspaceIsNoop(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	assert.NoError(t, vf.SyncOut("Ember", "workshop"))
}

func TestAppendJournalCreatesDailyFile(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	worldTime := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, vf.AppendJournal("Sage", worldTime, "Quiet thoughts on the rain."))
	require.NoError(t, vf.AppendJournal("Sage", worldTime, "A second entry."))

	data, err := os.ReadFile(filepath.Join(root, "agents", "Sage", "journal", "2026-03-14.md"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Quiet thoughts on the rain.")
	assert.Contains(t, content, "A second entry.")
}

func TestAppendDreamTagsVisibilityTick(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	require.NoError(t, vf.AppendDream("River", 42, "You dreamed of the river bending upstream."))

	data, err := os.ReadFile(filepath.Join(root, "agents", "River", "dreams", "dreams.md"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "tick:42")
	assert.Contains(t, content, "You dreamed of the river bending upstream.")
}

func TestEnsureAgentDirectoryCreatesStandardSubdirs(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	require.NoError(t, vf.EnsureAgentDirectory("Ember"))

	for _, sub := range []string{"home", "workspace", "journal", "dreams", "memories", "inbox", "outbox"} {
		info, err := os.Stat(filepath.Join(root, "agents", "ember", sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureSharedDirectoriesCreatesEveryLocationSubdir(t *testing.T) {
	root := t.TempDir()
	vf := New(root)

	require.NoError(t, vf.EnsureSharedDirectories())

	for _, sub := range []string{"town_square", "bulletin_board", "workshop", "library", "residential", "garden", "riverbank"} {
		info, err := os.Stat(filepath.Join(root, "shared", sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
