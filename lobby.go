package main

import (
	"sync"
	"time"

	"lobbycoop/store"
)

// Fixed blob sizes for the monotone-merge savefile fields. Sizes are named
// constants rather than magic numbers scattered through merge calls.
const (
	sizeCheatFlags        = 0x19
	sizeGameFlags         = 0x20
	sizeHoneycombFlags    = 0x03
	sizeJiggyFlags        = 0x0D
	sizeTokenFlags        = 0x10
	sizeNoteTotals        = 0x0F
	sizePuzzlesCompleted  = 11
	sizeFileProgressFlags = 0x25
	sizeAbilityProgress   = 8
	sizeHoneycombScore    = 0x03
	sizeMumboScore        = 0x10
	sizeNoteSaveDataSlot  = 32
	noteSaveDataSlotCount = 9
	sizeLevelEvents       = 4
	sizeMoves             = 4
)

// openedLevelSentinelOpener is the fixed "opened_by" value written for every
// OpenedLevel record. Clients never report who opened a world, only that it
// opened, so the field carries this placeholder.
const openedLevelSentinelOpener = "JiggyWiggy"

// notePositionTolerance is the per-axis proximity tolerance used to dedupe
// positional note pickups.
const notePositionTolerance = 10

// CollectedNote is an append-only, proximity-deduped pickup record.
type CollectedNote struct {
	MapID       int32
	X, Y, Z     int16
	CollectedBy string
	Timestamp   time.Time
}

// CollectedJiggy is keyed by (LevelID, JiggyID).
type CollectedJiggy struct {
	LevelID     int32
	JiggyID     int32
	CollectedBy string
	Timestamp   time.Time
}

// CollectedHoneycomb and CollectedMumboToken share a shape, keyed by
// (MapID, ItemID); they occupy distinct collections.
type CollectedHoneycomb struct {
	MapID, ItemID, X, Y, Z int32
	CollectedBy            string
	Timestamp              time.Time
}

type CollectedMumboToken struct {
	MapID, ItemID, X, Y, Z int32
	CollectedBy            string
	Timestamp              time.Time
}

// OpenedLevel is keyed by WorldID alone.
type OpenedLevel struct {
	WorldID   int32
	JiggyCost int32
	OpenedBy  string
	Timestamp time.Time
}

// LobbyPlayer is the minimal, non-persisted view of a live member kept on
// the Lobby itself (id → username), separate from the full Player entity
// owned by the PlayerRegistry.
type LobbyPlayer struct {
	ID       uint32
	Username string
}

// Lobby is a named, password-guarded shared-progression session. Every
// exported mutation method takes the lobby's own lock for the minimum
// window needed to check-and-append-or-merge.
type Lobby struct {
	Name     string
	Password string

	mu                 sync.RWMutex
	createdAt          time.Time
	lastActivity       time.Time
	hasInitialSaveData bool
	players            map[uint32]LobbyPlayer

	notes        []CollectedNote
	jiggies      []CollectedJiggy
	honeycombs   []CollectedHoneycomb
	mumboTokens  []CollectedMumboToken
	openedLevels []OpenedLevel

	cheatFlags        [sizeCheatFlags]byte
	gameFlags         [sizeGameFlags]byte
	honeycombFlags    [sizeHoneycombFlags]byte
	jiggyFlags        [sizeJiggyFlags]byte
	tokenFlags        [sizeTokenFlags]byte
	noteTotals        [sizeNoteTotals]byte
	puzzlesCompleted  [sizePuzzlesCompleted]byte
	fileProgressFlags [sizeFileProgressFlags]byte
	abilityProgress   [sizeAbilityProgress]byte
	honeycombScore    [sizeHoneycombScore]byte
	mumboScore        [sizeMumboScore]byte
	noteSaveData      [noteSaveDataSlotCount][sizeNoteSaveDataSlot]byte
	levelEvents       [sizeLevelEvents]byte
	moves             [sizeMoves]byte
}

// NewLobby creates a lobby with all savefile blobs zeroed.
func NewLobby(name, password string) *Lobby {
	now := time.Now()
	return &Lobby{
		Name:         name,
		Password:     password,
		createdAt:    now,
		lastActivity: now,
		players:      make(map[uint32]LobbyPlayer),
	}
}

func (l *Lobby) touch() {
	l.lastActivity = time.Now()
}

// LastActivity returns the lobby's last-activity timestamp.
func (l *Lobby) LastActivity() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastActivity
}

// HasInitialSaveData reports the latch used to decide whether a newly
// joined player should receive InitialSaveDataRequest.
func (l *Lobby) HasInitialSaveData() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hasInitialSaveData
}

// AddPlayer inserts a player into the lobby's live roster. Returns the
// current player count after insertion.
func (l *Lobby) AddPlayer(id uint32, username string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.players[id] = LobbyPlayer{ID: id, Username: username}
	l.touch()
	return len(l.players)
}

// RemovePlayer removes a player from the live roster.
func (l *Lobby) RemovePlayer(id uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.players, id)
}

// PlayerCount returns the number of live members.
func (l *Lobby) PlayerCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.players)
}

// Players returns a snapshot slice of the live roster.
func (l *Lobby) Players() []LobbyPlayer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LobbyPlayer, 0, len(l.players))
	for _, p := range l.players {
		out = append(out, p)
	}
	return out
}

// AddJiggy appends a jiggy pickup if (LevelID, JiggyID) hasn't been recorded
// yet. Returns true if newly appended.
func (l *Lobby) AddJiggy(levelID, jiggyID int32, collectedBy string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, j := range l.jiggies {
		if j.LevelID == levelID && j.JiggyID == jiggyID {
			return false
		}
	}
	l.jiggies = append(l.jiggies, CollectedJiggy{
		LevelID: levelID, JiggyID: jiggyID, CollectedBy: collectedBy, Timestamp: time.Now(),
	})
	l.touch()
	return true
}

// Jiggies returns a snapshot of historical jiggy records, in first-arrival
// order, for snapshot replay.
func (l *Lobby) Jiggies() []CollectedJiggy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CollectedJiggy, len(l.jiggies))
	copy(out, l.jiggies)
	return out
}

// AddHoneycomb appends a honeycomb pickup if (MapID, ItemID) is new.
func (l *Lobby) AddHoneycomb(mapID, itemID, x, y, z int32, collectedBy string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.honeycombs {
		if h.MapID == mapID && h.ItemID == itemID {
			return false
		}
	}
	l.honeycombs = append(l.honeycombs, CollectedHoneycomb{
		MapID: mapID, ItemID: itemID, X: x, Y: y, Z: z, CollectedBy: collectedBy, Timestamp: time.Now(),
	})
	l.touch()
	return true
}

func (l *Lobby) Honeycombs() []CollectedHoneycomb {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CollectedHoneycomb, len(l.honeycombs))
	copy(out, l.honeycombs)
	return out
}

// AddMumboToken appends a mumbo token pickup if (MapID, ItemID) is new. It
// occupies a distinct collection from honeycombs even though the shape and
// keying rule are identical.
func (l *Lobby) AddMumboToken(mapID, itemID, x, y, z int32, collectedBy string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.mumboTokens {
		if m.MapID == mapID && m.ItemID == itemID {
			return false
		}
	}
	l.mumboTokens = append(l.mumboTokens, CollectedMumboToken{
		MapID: mapID, ItemID: itemID, X: x, Y: y, Z: z, CollectedBy: collectedBy, Timestamp: time.Now(),
	})
	l.touch()
	return true
}

func (l *Lobby) MumboTokens() []CollectedMumboToken {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CollectedMumboToken, len(l.mumboTokens))
	copy(out, l.mumboTokens)
	return out
}

// AddNote appends a note pickup unless an existing record on the same map
// is within notePositionTolerance on every axis.
func (l *Lobby) AddNote(mapID int32, x, y, z int16, collectedBy string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.notes {
		if n.MapID != mapID {
			continue
		}
		if abs16(n.X-x) <= notePositionTolerance && abs16(n.Y-y) <= notePositionTolerance && abs16(n.Z-z) <= notePositionTolerance {
			return false
		}
	}
	l.notes = append(l.notes, CollectedNote{MapID: mapID, X: x, Y: y, Z: z, CollectedBy: collectedBy, Timestamp: time.Now()})
	l.touch()
	return true
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

// AddOpenedLevel appends a level-opened record keyed solely by WorldID. The
// opener is always recorded as the fixed sentinel.
func (l *Lobby) AddOpenedLevel(worldID, jiggyCost int32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.openedLevels {
		if o.WorldID == worldID {
			return false
		}
	}
	l.openedLevels = append(l.openedLevels, OpenedLevel{
		WorldID: worldID, JiggyCost: jiggyCost, OpenedBy: openedLevelSentinelOpener, Timestamp: time.Now(),
	})
	l.touch()
	return true
}

func (l *Lobby) OpenedLevels() []OpenedLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]OpenedLevel, len(l.openedLevels))
	copy(out, l.openedLevels)
	return out
}

// mergeOR ORs src into dst over min(len(dst), len(src)) bytes, so a client
// sending a shorter or longer blob than expected merges what overlaps.
// Reports whether any byte changed.
func mergeOR(dst []byte, src []byte) bool {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	changed := false
	for i := 0; i < n; i++ {
		merged := dst[i] | src[i]
		if merged != dst[i] {
			changed = true
		}
		dst[i] = merged
	}
	return changed
}

// mergeMax takes the per-byte maximum of src into dst over
// min(len(dst), len(src)) bytes: the note_totals merge rule. No message
// handler merges into note_totals, so nothing outside tests calls it.
func mergeMax(dst []byte, src []byte) bool {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	changed := false
	for i := 0; i < n; i++ {
		if src[i] > dst[i] {
			dst[i] = src[i]
			changed = true
		}
	}
	return changed
}

// MergeFileProgressFlags merges bytes via bitwise-OR and, if any bit
// changed, latches has_initial_save_data.
func (l *Lobby) MergeFileProgressFlags(bytes []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := mergeOR(l.fileProgressFlags[:], bytes)
	if changed {
		l.hasInitialSaveData = true
		l.touch()
	}
	return changed
}

// MergeAbilityProgress merges bytes via bitwise-OR. Unlike the other
// savefile handlers, this does not latch has_initial_save_data.
func (l *Lobby) MergeAbilityProgress(bytes []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := mergeOR(l.abilityProgress[:], bytes)
	if changed {
		l.touch()
	}
	return changed
}

func (l *Lobby) MergeHoneycombScore(bytes []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := mergeOR(l.honeycombScore[:], bytes)
	if changed {
		l.hasInitialSaveData = true
		l.touch()
	}
	return changed
}

func (l *Lobby) MergeMumboScore(bytes []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := mergeOR(l.mumboScore[:], bytes)
	if changed {
		l.hasInitialSaveData = true
		l.touch()
	}
	return changed
}

// MergeNoteSaveData merges into slot levelIndex if it's in range and data is
// exactly 32 bytes; any change latches has_initial_save_data.
func (l *Lobby) MergeNoteSaveData(levelIndex int32, data []byte) bool {
	if levelIndex < 0 || int(levelIndex) >= noteSaveDataSlotCount || len(data) != sizeNoteSaveDataSlot {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := mergeOR(l.noteSaveData[levelIndex][:], data)
	if changed {
		l.hasInitialSaveData = true
		l.touch()
	}
	return changed
}

// NoteSaveDataSlot returns a copy of slot i (0..8).
func (l *Lobby) NoteSaveDataSlot(i int) [sizeNoteSaveDataSlot]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.noteSaveData[i]
}

// FileProgressFlagsBytes, AbilityProgressBytes, HoneycombScoreBytes and
// MumboScoreBytes return copies of the current blob for snapshot replay.
func (l *Lobby) FileProgressFlagsBytes() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]byte, len(l.fileProgressFlags))
	copy(out, l.fileProgressFlags[:])
	return out
}

func (l *Lobby) AbilityProgressBytes() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]byte, len(l.abilityProgress))
	copy(out, l.abilityProgress[:])
	return out
}

func (l *Lobby) HoneycombScoreBytes() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]byte, len(l.honeycombScore))
	copy(out, l.honeycombScore[:])
	return out
}

func (l *Lobby) MumboScoreBytes() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]byte, len(l.mumboScore))
	copy(out, l.mumboScore[:])
	return out
}

// Snapshot converts the lobby to its on-disk schema: everything except the
// live players map.
func (l *Lobby) Snapshot() store.LobbySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	notes := make([]store.NoteSnapshot, len(l.notes))
	for i, n := range l.notes {
		notes[i] = store.NoteSnapshot{MapID: n.MapID, X: n.X, Y: n.Y, Z: n.Z, CollectedBy: n.CollectedBy, Timestamp: n.Timestamp}
	}
	jiggies := make([]store.JiggySnapshot, len(l.jiggies))
	for i, j := range l.jiggies {
		jiggies[i] = store.JiggySnapshot{LevelID: j.LevelID, JiggyID: j.JiggyID, CollectedBy: j.CollectedBy, Timestamp: j.Timestamp}
	}
	honeycombs := make([]store.ItemSnapshot, len(l.honeycombs))
	for i, h := range l.honeycombs {
		honeycombs[i] = store.ItemSnapshot{MapID: h.MapID, ItemID: h.ItemID, X: h.X, Y: h.Y, Z: h.Z, CollectedBy: h.CollectedBy, Timestamp: h.Timestamp}
	}
	mumbo := make([]store.ItemSnapshot, len(l.mumboTokens))
	for i, m := range l.mumboTokens {
		mumbo[i] = store.ItemSnapshot{MapID: m.MapID, ItemID: m.ItemID, X: m.X, Y: m.Y, Z: m.Z, CollectedBy: m.CollectedBy, Timestamp: m.Timestamp}
	}
	levels := make([]store.LevelSnapshot, len(l.openedLevels))
	for i, o := range l.openedLevels {
		levels[i] = store.LevelSnapshot{WorldID: o.WorldID, JiggyCost: o.JiggyCost, OpenedBy: o.OpenedBy, Timestamp: o.Timestamp}
	}
	noteSaveData := make([][]byte, noteSaveDataSlotCount)
	for i := range l.noteSaveData {
		noteSaveData[i] = append([]byte(nil), l.noteSaveData[i][:]...)
	}

	return store.LobbySnapshot{
		Name:               l.Name,
		Password:           l.Password,
		CreatedAt:          l.createdAt,
		LastActivity:       l.lastActivity,
		HasInitialSaveData: l.hasInitialSaveData,
		Notes:              notes,
		Jiggies:            jiggies,
		Honeycombs:         honeycombs,
		MumboTokens:        mumbo,
		OpenedLevels:       levels,
		CheatFlags:         append([]byte(nil), l.cheatFlags[:]...),
		GameFlags:          append([]byte(nil), l.gameFlags[:]...),
		HoneycombFlags:     append([]byte(nil), l.honeycombFlags[:]...),
		JiggyFlags:         append([]byte(nil), l.jiggyFlags[:]...),
		TokenFlags:         append([]byte(nil), l.tokenFlags[:]...),
		NoteTotals:         append([]byte(nil), l.noteTotals[:]...),
		PuzzlesCompleted:   append([]byte(nil), l.puzzlesCompleted[:]...),
		FileProgressFlags:  append([]byte(nil), l.fileProgressFlags[:]...),
		AbilityProgress:    append([]byte(nil), l.abilityProgress[:]...),
		HoneycombScore:     append([]byte(nil), l.honeycombScore[:]...),
		MumboScore:         append([]byte(nil), l.mumboScore[:]...),
		NoteSaveData:       noteSaveData,
		LevelEvents:        append([]byte(nil), l.levelEvents[:]...),
		Moves:              append([]byte(nil), l.moves[:]...),
	}
}

// NewLobbyFromSnapshot restores a lobby from its on-disk schema at startup.
// The live players map starts empty.
func NewLobbyFromSnapshot(snap store.LobbySnapshot) *Lobby {
	l := &Lobby{
		Name:               snap.Name,
		Password:           snap.Password,
		createdAt:          snap.CreatedAt,
		lastActivity:       snap.LastActivity,
		hasInitialSaveData: snap.HasInitialSaveData,
		players:            make(map[uint32]LobbyPlayer),
	}
	for _, n := range snap.Notes {
		l.notes = append(l.notes, CollectedNote{MapID: n.MapID, X: n.X, Y: n.Y, Z: n.Z, CollectedBy: n.CollectedBy, Timestamp: n.Timestamp})
	}
	for _, j := range snap.Jiggies {
		l.jiggies = append(l.jiggies, CollectedJiggy{LevelID: j.LevelID, JiggyID: j.JiggyID, CollectedBy: j.CollectedBy, Timestamp: j.Timestamp})
	}
	for _, h := range snap.Honeycombs {
		l.honeycombs = append(l.honeycombs, CollectedHoneycomb{MapID: h.MapID, ItemID: h.ItemID, X: h.X, Y: h.Y, Z: h.Z, CollectedBy: h.CollectedBy, Timestamp: h.Timestamp})
	}
	for _, m := range snap.MumboTokens {
		l.mumboTokens = append(l.mumboTokens, CollectedMumboToken{MapID: m.MapID, ItemID: m.ItemID, X: m.X, Y: m.Y, Z: m.Z, CollectedBy: m.CollectedBy, Timestamp: m.Timestamp})
	}
	for _, o := range snap.OpenedLevels {
		l.openedLevels = append(l.openedLevels, OpenedLevel{WorldID: o.WorldID, JiggyCost: o.JiggyCost, OpenedBy: o.OpenedBy, Timestamp: o.Timestamp})
	}
	copy(l.cheatFlags[:], snap.CheatFlags)
	copy(l.gameFlags[:], snap.GameFlags)
	copy(l.honeycombFlags[:], snap.HoneycombFlags)
	copy(l.jiggyFlags[:], snap.JiggyFlags)
	copy(l.tokenFlags[:], snap.TokenFlags)
	copy(l.noteTotals[:], snap.NoteTotals)
	copy(l.puzzlesCompleted[:], snap.PuzzlesCompleted)
	copy(l.fileProgressFlags[:], snap.FileProgressFlags)
	copy(l.abilityProgress[:], snap.AbilityProgress)
	copy(l.honeycombScore[:], snap.HoneycombScore)
	copy(l.mumboScore[:], snap.MumboScore)
	for i := 0; i < noteSaveDataSlotCount && i < len(snap.NoteSaveData); i++ {
		copy(l.noteSaveData[i][:], snap.NoteSaveData[i])
	}
	copy(l.levelEvents[:], snap.LevelEvents)
	copy(l.moves[:], snap.Moves)
	return l
}
