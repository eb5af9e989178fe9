// Package store provides persistent lobby state backed by one JSON file per
// lobby under a configured directory. It owns the on-disk lifecycle and
// exposes a minimal Open/Save/LoadAll/Close API.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// NoteSnapshot is the persisted shape of a positional note pickup.
type NoteSnapshot struct {
	MapID       int32     `json:"map_id"`
	X           int16     `json:"x"`
	Y           int16     `json:"y"`
	Z           int16     `json:"z"`
	CollectedBy string    `json:"collected_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// JiggySnapshot is the persisted shape of a jiggy pickup.
type JiggySnapshot struct {
	LevelID     int32     `json:"level_id"`
	JiggyID     int32     `json:"jiggy_id"`
	CollectedBy string    `json:"collected_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// ItemSnapshot is the shared persisted shape for honeycomb and mumbo-token
// pickups (identical shape, distinct collections).
type ItemSnapshot struct {
	MapID       int32     `json:"map_id"`
	ItemID      int32     `json:"item_id"`
	X           int32     `json:"x"`
	Y           int32     `json:"y"`
	Z           int32     `json:"z"`
	CollectedBy string    `json:"collected_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// LevelSnapshot is the persisted shape of an opened-level record.
type LevelSnapshot struct {
	WorldID   int32     `json:"world_id"`
	JiggyCost int32     `json:"jiggy_cost"`
	OpenedBy  string    `json:"opened_by"`
	Timestamp time.Time `json:"timestamp"`
}

// LobbySnapshot is the on-disk schema for a single lobby: everything except
// the live, non-persisted players map.
type LobbySnapshot struct {
	Name               string          `json:"name"`
	Password           string          `json:"password"`
	CreatedAt          time.Time       `json:"created_at"`
	LastActivity       time.Time       `json:"last_activity"`
	HasInitialSaveData bool            `json:"has_initial_save_data"`
	Notes              []NoteSnapshot  `json:"notes"`
	Jiggies            []JiggySnapshot `json:"jiggies"`
	Honeycombs         []ItemSnapshot  `json:"honeycombs"`
	MumboTokens        []ItemSnapshot  `json:"mumbo_tokens"`
	OpenedLevels       []LevelSnapshot `json:"opened_levels"`

	CheatFlags        []byte   `json:"cheat_flags"`
	GameFlags         []byte   `json:"game_flags"`
	HoneycombFlags    []byte   `json:"honeycomb_flags"`
	JiggyFlags        []byte   `json:"jiggy_flags"`
	TokenFlags        []byte   `json:"token_flags"`
	NoteTotals        []byte   `json:"note_totals"`
	PuzzlesCompleted  []byte   `json:"puzzles_completed"`
	FileProgressFlags []byte   `json:"file_progress_flags"`
	AbilityProgress   []byte   `json:"ability_progress"`
	HoneycombScore    []byte   `json:"honeycomb_score"`
	MumboScore        []byte   `json:"mumbo_score"`
	NoteSaveData      [][]byte `json:"note_save_data"`
	LevelEvents       []byte   `json:"level_events"`
	Moves             []byte   `json:"moves"`
}

// Store manages one JSON file per lobby under dir.
type Store struct {
	dir    string
	logger *logrus.Logger
}

// Open prepares dir (creating it if needed) for per-lobby JSON persistence.
func Open(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create persistence dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Close is a no-op; there is no open handle to release for a plain
// directory of files.
func (s *Store) Close() error { return nil }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save writes snap to persistence_dir/<name>.json atomically: it writes to a
// temp file in the same directory and renames over the target, so a crash
// mid-write never leaves a partially-written lobby file.
func (s *Store) Save(name string, snap LobbySnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lobby %q: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write lobby %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename lobby %q: %w", name, err)
	}
	return nil
}

// Delete removes the persisted file for name, if present.
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadAll reads every *.json file in the persistence directory. Unreadable
// or unparseable files are logged and skipped, never fatal.
func (s *Store) LoadAll() map[string]LobbySnapshot {
	out := make(map[string]LobbySnapshot)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warnf("[store] read persistence dir: %v", err)
		return out
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warnf("[store] read %s: %v", e.Name(), err)
			continue
		}
		var snap LobbySnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warnf("[store] parse %s: %v", e.Name(), err)
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		out[name] = snap
	}
	return out
}
