// Package fsync mirrors location-scoped shared files into and out of an
// agent's workspace around a turn, and appends to an agent's journal and
// dream files. These are opaque filesystem operations with no
// corresponding domain event.
package fsync

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

// locationSharedDirs maps a location to the shared subdirectories visible
// from it. A location with no entry has nothing shared.
var locationSharedDirs = map[domain.LocationID][]string{
	"town_square": {"town_square", "bulletin_board"},
	"workshop":    {"workshop"},
	"library":     {"library"},
	"residential": {"residential"},
	"garden":      {"garden"},
	"riverbank":   {"riverbank"},
}

// VillageFiles implements phases.FilesystemSyncer and engine.JournalWriter/
// engine.DreamWriter against a village's root directory on disk.
type VillageFiles struct {
	root string
}

// New returns a VillageFiles rooted at villageRoot. The directory tree is
// not created until EnsureSharedDirectories/EnsureAgentDirectory is called.
func New(villageRoot string) *VillageFiles {
	return &VillageFiles{root: villageRoot}
}

func (v *VillageFiles) agentDir(agent domain.AgentName) string {
	return filepath.Join(v.root, "agents", strings.ToLower(string(agent)))
}

func (v *VillageFiles) masterDir(subdir string) string {
	return filepath.Join(v.root, "shared", subdir)
}

// EnsureAgentDirectory creates an agent's standard subdirectory tree if it
// doesn't already exist.
func (v *VillageFiles) EnsureAgentDirectory(agent domain.AgentName) error {
	dir := v.agentDir(agent)
	for _, sub := range []string{"home", "workspace", "journal", "dreams", "memories", "inbox", "outbox"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("ensure agent directory %s/%s: %w", agent, sub, err)
		}
	}
	return nil
}

// EnsureSharedDirectories creates the village's shared/<subdir> tree for
// every subdirectory named across all locations.
func (v *VillageFiles) EnsureSharedDirectories() error {
	seen := make(map[string]struct{})
	for _, subdirs := range locationSharedDirs {
		for _, s := range subdirs {
			seen[s] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for s := range seen {
		names = append(names, s)
	}
	sort.Strings(names)

	for _, s := range names {
		if err := os.MkdirAll(v.masterDir(s), 0o755); err != nil {
			return fmt.Errorf("ensure shared directory %s: %w", s, err)
		}
	}
	return nil
}

// SyncIn copies every shared subdirectory visible from location into the
// agent's shared/ workspace, replacing whatever was there before the
// agent's prior turn.
func (v *VillageFiles) SyncIn(agent domain.AgentName, location domain.LocationID) error {
	sharedDir := filepath.Join(v.agentDir(agent), "shared")
	if err := os.RemoveAll(sharedDir); err != nil {
		return fmt.Errorf("clear agent shared dir: %w", err)
	}
	if err := os.MkdirAll(sharedDir, 0o755); err != nil {
		return fmt.Errorf("create agent shared dir: %w", err)
	}

	for _, subdir := range locationSharedDirs[location] {
		src := v.masterDir(subdir)
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			continue
		}
		if err := copyTree(src, filepath.Join(sharedDir, subdir)); err != nil {
			return fmt.Errorf("sync in %s: %w", subdir, err)
		}
	}
	return nil
}

// SyncOut copies every file under the agent's shared/ workspace back to
// the village's master copy for location, then discards the workspace
// copy. location must be the one the agent's turn started at, not
// wherever they ended up.
func (v *VillageFiles) SyncOut(agent domain.AgentName, location domain.LocationID) error {
	sharedDir := filepath.Join(v.agentDir(agent), "shared")
	if _, err := os.Stat(sharedDir); os.IsNotExist(err) {
		return nil
	}

	for _, subdir := range locationSharedDirs[location] {
		src := filepath.Join(sharedDir, subdir)
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			continue
		}
		if err := copyTree(src, v.masterDir(subdir)); err != nil {
			return fmt.Errorf("sync out %s: %w", subdir, err)
		}
	}

	return os.RemoveAll(sharedDir)
}

// AppendJournal appends content, preceded by a blank line, to the agent's
// journal file for the day named by worldTime.
func (v *VillageFiles) AppendJournal(agent domain.AgentName, worldTime time.Time, content string) error {
	dir := filepath.Join(v.root, "agents", string(agent), "journal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure journal dir: %w", err)
	}
	path := filepath.Join(dir, worldTime.Format("2006-01-02")+".md")
	return appendFile(path, "\n\n"+content)
}

// AppendDream appends content to the agent's dream log, preceded by an
// HTML comment tagging it with visibleAtTick. Nothing in this module
// reads the dream log back.
func (v *VillageFiles) AppendDream(agent domain.AgentName, visibleAtTick int, content string) error {
	dir := filepath.Join(v.root, "agents", string(agent), "dreams")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dreams dir: %w", err)
	}
	path := filepath.Join(dir, "dreams.md")
	entry := fmt.Sprintf("\n\n<!-- tick:%d -->\n%s", visibleAtTick, content)
	return appendFile(path, entry)
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// copyTree recursively copies src onto dst, creating directories and
// overwriting existing files.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
