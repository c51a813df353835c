package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/scheduler"
)

// SnapshotInterval is how often, in ticks, the engine writes a full
// snapshot.
const SnapshotInterval = 100

var snapshotFilePattern = regexp.MustCompile(`^state_(\d+)\.json$`)

// SnapshotStore persists full VillageSnapshots as individual
// state_<tick>.json files.
type SnapshotStore struct {
	root string
}

// NewSnapshotStore returns a store rooted at dir, creating it if
// necessary.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &SnapshotStore{root: dir}, nil
}

func (s *SnapshotStore) pathForTick(tick int) string {
	return filepath.Join(s.root, fmt.Sprintf("state_%d.json", tick))
}

// snapshotJSON is the on-disk wire shape: VillageSnapshot's fields
// flattened with the scheduler state nested, matching the reference
// snapshot_store.py layout.
type snapshotJSON struct {
	World          domain.WorldSnapshot                              `json:"world"`
	Agents         map[domain.AgentName]domain.AgentSnapshot         `json:"agents"`
	Conversations  map[domain.ConversationID]domain.Conversation     `json:"conversations"`
	PendingInvites map[domain.AgentName]domain.Invitation            `json:"pending_invites"`
	Scheduler      scheduler.State                                   `json:"scheduler"`
	UnseenEndings  map[domain.AgentName][]domain.UnseenConversationEnding `json:"unseen_endings,omitempty"`
}

// Save writes snapshot to state_<tick>.json.
func (s *SnapshotStore) Save(snapshot VillageSnapshot) error {
	wire := snapshotJSON{
		World: snapshot.World, Agents: snapshot.Agents,
		Conversations: snapshot.Conversations, PendingInvites: snapshot.PendingInvites,
		Scheduler: snapshot.Scheduler, UnseenEndings: snapshot.UnseenEndings,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	path := s.pathForTick(snapshot.Tick())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize snapshot %s: %w", path, err)
	}
	return nil
}

// Load reads the snapshot for a specific tick.
func (s *SnapshotStore) Load(tick int) (VillageSnapshot, error) {
	path := s.pathForTick(tick)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return VillageSnapshot{}, fmt.Errorf("%w: tick %d", ErrSnapshotNotFound, tick)
	}
	if err != nil {
		return VillageSnapshot{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var wire snapshotJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return VillageSnapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return VillageSnapshot{
		World: wire.World, Agents: wire.Agents, Conversations: wire.Conversations,
		PendingInvites: wire.PendingInvites, Scheduler: wire.Scheduler, UnseenEndings: wire.UnseenEndings,
	}, nil
}

// GetLatestTick returns the highest tick with a snapshot on disk.
func (s *SnapshotStore) GetLatestTick() (int, bool, error) {
	ticks, err := s.listTicks()
	if err != nil {
		return 0, false, err
	}
	if len(ticks) == 0 {
		return 0, false, nil
	}
	return ticks[len(ticks)-1], true, nil
}

// LoadLatest loads the snapshot with the highest tick on disk.
func (s *SnapshotStore) LoadLatest() (VillageSnapshot, error) {
	tick, ok, err := s.GetLatestTick()
	if err != nil {
		return VillageSnapshot{}, err
	}
	if !ok {
		return VillageSnapshot{}, ErrNoSnapshot
	}
	return s.Load(tick)
}

// ListSnapshots returns every tick with a snapshot on disk, ascending.
func (s *SnapshotStore) ListSnapshots() ([]int, error) {
	return s.listTicks()
}

func (s *SnapshotStore) listTicks() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list snapshot dir: %w", err)
	}
	var ticks []int
	for _, entry := range entries {
		m := snapshotFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		tick, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ticks = append(ticks, tick)
	}
	sort.Ints(ticks)
	return ticks, nil
}
