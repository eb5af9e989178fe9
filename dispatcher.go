package main

import (
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"
)

// Dispatcher routes each classified datagram to its per-kind handler. A
// handler resolves the player and lobby, mutates state, and fans out any
// resulting broadcast.
type Dispatcher struct {
	lobbies     *LobbyStore
	players     *PlayerRegistry
	reliability *Reliability
	send        SendFunc
	cfg         *Config
	logger      *logrus.Logger

	targetPool sync.Pool
}

func NewDispatcher(lobbies *LobbyStore, players *PlayerRegistry, reliability *Reliability, send SendFunc, cfg *Config, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		lobbies:     lobbies,
		players:     players,
		reliability: reliability,
		send:        send,
		cfg:         cfg,
		logger:      logger,
	}
	d.targetPool.New = func() any {
		s := make([]netip.AddrPort, 0, 16)
		return &s
	}
	return d
}

// Dispatch is the entry point called once per received datagram: classify,
// dedup/ack reliable kinds, then hand off to the handler.
func (d *Dispatcher) Dispatch(src netip.AddrPort, datagram []byte) {
	tag, body, err := Split(datagram)
	if err != nil {
		d.logger.Warnf("[dispatch] %s: %v", src, err)
		return
	}

	if KindName(tag) == "" {
		// Unrecognized tag: logged and dropped, never fatal.
		d.logger.Warnf("[dispatch] unknown tag %d from %s", tag, src)
		return
	}

	if IsReliable(tag) {
		seq, rest, err := SplitReliable(body)
		if err != nil {
			d.logger.Warnf("[dispatch] %s tag=%d: %v", src, tag, err)
			return
		}
		if !d.reliability.HandleInbound(src, tag, seq) {
			return // duplicate, already acked
		}
		body = rest
	}

	switch tag {
	case TagHandshake:
		d.handleHandshake(src, body)
	case TagPing:
		d.handlePing(src)
	case TagReliableAck:
		d.handleReliableAck(src, body)
	case TagPuppetUpdate:
		d.handlePuppetUpdate(src, body)
	case TagPuppetSyncRequest:
		d.handlePuppetSyncRequest(src)
	default:
		d.dispatchStateful(src, tag, body)
	}
}

// dispatchStateful is the common prologue shared by every kind other than
// Handshake and Ping: resolve player by address, drop if absent; resolve
// the player's lobby, drop if absent.
func (d *Dispatcher) dispatchStateful(src netip.AddrPort, tag Tag, body []byte) {
	player, ok := d.players.GetByAddr(src)
	if !ok {
		return // UnknownSender: drop, no log (expected pre-handshake traffic)
	}
	player.Touch()

	lobby, ok := d.lobbies.Get(player.LobbyName())
	if !ok {
		d.logger.Warnf("[dispatch] %s: player %d has no live lobby %q", src, player.ID, player.LobbyName())
		return
	}

	switch tag {
	case TagJiggyCollected:
		d.handleJiggyCollected(player, lobby, body)
	case TagNoteCollected:
		d.handleNoteCollected(player, lobby, body)
	case TagNoteCollectedPos:
		d.handleNoteCollectedPos(player, lobby, body)
	case TagHoneycombCollected:
		d.handleHoneycombCollected(player, lobby, body)
	case TagMumboTokenCollected:
		d.handleMumboTokenCollected(player, lobby, body)
	case TagLevelOpened:
		d.handleLevelOpened(player, lobby, body)
	case TagFileProgressFlags:
		d.handleFileProgressFlags(player, lobby, body)
	case TagAbilityProgress:
		d.handleAbilityProgress(player, lobby, body)
	case TagHoneycombScore:
		d.handleHoneycombScore(player, lobby, body)
	case TagMumboScore:
		d.handleMumboScore(player, lobby, body)
	case TagNoteSaveData:
		d.handleNoteSaveData(player, lobby, body)
	case TagFullSyncRequest:
		d.sendFullSnapshot(player, lobby)
	default:
		d.logger.Warnf("[dispatch] %s: unhandled stateful tag %d", src, tag)
	}
}

// --- Handshake & liveness -------------------------------------------------

func (d *Dispatcher) handleHandshake(src netip.AddrPort, body []byte) {
	h, err := DecodeHandshake(body)
	if err != nil {
		d.logger.Warnf("[handshake] %s: %v", src, err)
		return
	}

	lobby, ok := d.lobbies.GetOrCreate(h.LobbyName, h.Password)
	if !ok {
		d.logger.Warnf("[handshake] %s: lobby limit reached, dropping join to %q", src, h.LobbyName)
		return
	}
	if lobby.Password != "" && lobby.Password != h.Password {
		d.logger.Warnf("[handshake] %s: bad password for lobby %q", src, h.LobbyName)
		return
	}
	if lobby.PlayerCount() >= d.cfg.MaxPlayersPerLobby {
		d.logger.Warnf("[handshake] %s: lobby %q full", src, h.LobbyName)
		return
	}

	player := d.players.GetOrCreate(src, h.Username)
	player.SetLobbyName(h.LobbyName)

	needsInitialSave := !lobby.HasInitialSaveData()
	lobby.AddPlayer(player.ID, h.Username)
	d.logger.Infof("[lobby] %q: %s (id=%d) joined", h.LobbyName, h.Username, player.ID)

	d.send(src, Encode(TagPong, nil))
	if needsInitialSave {
		d.send(src, Encode(TagInitialSaveDataRequest, nil))
	}

	d.broadcastToLobbyExcept(lobby, player.ID, TagPlayerConnected, EncodePresenceEvent(player.ID, h.Username), false)

	d.sendFullSnapshot(player, lobby)
}

func (d *Dispatcher) handlePing(src netip.AddrPort) {
	d.send(src, Encode(TagPong, nil))
}

func (d *Dispatcher) handleReliableAck(src netip.AddrPort, body []byte) {
	seq, err := DecodeReliableAck(body)
	if err != nil {
		return
	}
	d.reliability.HandleAck(src, seq)
}

// --- Progression handlers --------------------------------------------------

func (d *Dispatcher) handleJiggyCollected(player *Player, lobby *Lobby, body []byte) {
	in, err := DecodeJiggyCollectedIn(body)
	if err != nil {
		d.logger.Warnf("[jiggy] %d: %v", player.ID, err)
		return
	}
	if !lobby.AddJiggy(in.JiggyEnumID, in.CollectedValue, player.Username) {
		return // DuplicateProgression: not an error, no broadcast
	}
	out := EncodeJiggyCollectedOut(player.ID, in.JiggyEnumID, in.CollectedValue)
	d.broadcastToLobbyExcept(lobby, player.ID, TagJiggyCollected, out, true)
}

// handleNoteCollected is the non-positional "legacy" note pickup kind. It
// carries no x/y/z, so it cannot be keyed into the proximity-deduped
// CollectedNote table that NoteCollectedPos uses; it never dedupes, just
// rebroadcasts unconditionally.
func (d *Dispatcher) handleNoteCollected(player *Player, lobby *Lobby, body []byte) {
	in, err := DecodeNoteCollectedIn(body)
	if err != nil {
		d.logger.Warnf("[note] %d: %v", player.ID, err)
		return
	}
	out := encodeNoteCollectedOut(player.ID, in)
	d.broadcastToLobbyExcept(lobby, player.ID, TagNoteCollected, out, true)
}

func (d *Dispatcher) handleNoteCollectedPos(player *Player, lobby *Lobby, body []byte) {
	in, err := DecodeNoteCollectedPosIn(body)
	if err != nil {
		d.logger.Warnf("[note-pos] %d: %v", player.ID, err)
		return
	}
	if !lobby.AddNote(in.MapID, in.X, in.Y, in.Z, player.Username) {
		return
	}
	out := encodeNoteCollectedPosOut(player.ID, in)
	d.broadcastToLobbyExcept(lobby, player.ID, TagNoteCollectedPos, out, true)
}

func (d *Dispatcher) handleHoneycombCollected(player *Player, lobby *Lobby, body []byte) {
	in, err := DecodeHoneycombOrMumboIn(body)
	if err != nil {
		d.logger.Warnf("[honeycomb] %d: %v", player.ID, err)
		return
	}
	if !lobby.AddHoneycomb(in.MapID, in.ID, in.X, in.Y, in.Z, player.Username) {
		return
	}
	out := EncodeHoneycombOrMumboOut(player.ID, in)
	d.broadcastToLobbyExcept(lobby, player.ID, TagHoneycombCollected, out, true)
}

func (d *Dispatcher) handleMumboTokenCollected(player *Player, lobby *Lobby, body []byte) {
	in, err := DecodeHoneycombOrMumboIn(body)
	if err != nil {
		d.logger.Warnf("[mumbo] %d: %v", player.ID, err)
		return
	}
	if !lobby.AddMumboToken(in.MapID, in.ID, in.X, in.Y, in.Z, player.Username) {
		return
	}
	out := EncodeHoneycombOrMumboOut(player.ID, in)
	d.broadcastToLobbyExcept(lobby, player.ID, TagMumboTokenCollected, out, true)
}

func (d *Dispatcher) handleLevelOpened(player *Player, lobby *Lobby, body []byte) {
	in, err := DecodeLevelOpenedIn(body)
	if err != nil {
		d.logger.Warnf("[level] %d: %v", player.ID, err)
		return
	}
	if !lobby.AddOpenedLevel(in.WorldID, in.JiggyCost) {
		return
	}
	out := EncodeLevelOpenedOut(player.ID, in.WorldID, in.JiggyCost)
	d.broadcastToLobbyExcept(lobby, player.ID, TagLevelOpened, out, true)
}

// --- Savefile blob handlers -------------------------------------------------
//
// These always rebroadcast the incoming bytes to the rest of the lobby,
// even when the merge changed nothing, so peers can cross-check their local
// state against what the sender reported.

func (d *Dispatcher) handleFileProgressFlags(player *Player, lobby *Lobby, body []byte) {
	lobby.MergeFileProgressFlags(body)
	d.broadcastToLobbyExcept(lobby, player.ID, TagFileProgressFlags, prependPlayerID(player.ID, body), true)
}

func (d *Dispatcher) handleAbilityProgress(player *Player, lobby *Lobby, body []byte) {
	lobby.MergeAbilityProgress(body)
	d.broadcastToLobbyExcept(lobby, player.ID, TagAbilityProgress, prependPlayerID(player.ID, body), true)
}

func (d *Dispatcher) handleHoneycombScore(player *Player, lobby *Lobby, body []byte) {
	lobby.MergeHoneycombScore(body)
	d.broadcastToLobbyExcept(lobby, player.ID, TagHoneycombScore, prependPlayerID(player.ID, body), true)
}

func (d *Dispatcher) handleMumboScore(player *Player, lobby *Lobby, body []byte) {
	lobby.MergeMumboScore(body)
	d.broadcastToLobbyExcept(lobby, player.ID, TagMumboScore, prependPlayerID(player.ID, body), true)
}

func (d *Dispatcher) handleNoteSaveData(player *Player, lobby *Lobby, body []byte) {
	n, err := DecodeNoteSaveData(body)
	if err != nil {
		d.logger.Warnf("[note-save] %d: %v", player.ID, err)
		return
	}
	lobby.MergeNoteSaveData(n.LevelIndex, n.Bytes[:])
	// Not rebroadcast; clients pull this via FullSyncRequest.
}

// --- Puppet relay -----------------------------------------------------------

func (d *Dispatcher) handlePuppetUpdate(src netip.AddrPort, body []byte) {
	player, ok := d.players.GetByAddr(src)
	if !ok {
		return
	}
	player.Touch()
	lobby, ok := d.lobbies.Get(player.LobbyName())
	if !ok {
		return
	}
	player.SetPuppetState(body)
	forward := EncodePuppetForward(player.ID, body)
	d.broadcastToLobbyExcept(lobby, player.ID, TagPuppetUpdate, forward, false)
}

func (d *Dispatcher) handlePuppetSyncRequest(src netip.AddrPort) {
	player, ok := d.players.GetByAddr(src)
	if !ok {
		return
	}
	player.Touch()
	lobby, ok := d.lobbies.Get(player.LobbyName())
	if !ok {
		return
	}
	for _, member := range lobby.Players() {
		if member.ID == player.ID {
			continue
		}
		other, ok := d.players.GetByID(member.ID)
		if !ok {
			continue
		}
		state := other.PuppetState()
		if state == nil {
			continue
		}
		d.send(src, Encode(TagPuppetUpdate, EncodePuppetForward(other.ID, state)))
	}
}

// --- Full lobby snapshot ----------------------------------------------------

// sendFullSnapshot sends, in order, all via the reliable path: nine
// NoteSaveData slots, the four savefile blobs, then historical jiggies,
// honeycombs, mumbo tokens, and opened levels, each with player_id=0
// signaling "history".
func (d *Dispatcher) sendFullSnapshot(dest *Player, lobby *Lobby) {
	addr := dest.Address

	for i := 0; i < noteSaveDataSlotCount; i++ {
		slot := lobby.NoteSaveDataSlot(i)
		d.reliability.SendReliable(addr, TagNoteSaveData, EncodeNoteSaveData(NoteSaveDataBody{LevelIndex: int32(i), Bytes: slot}))
	}

	d.reliability.SendReliable(addr, TagFileProgressFlags, prependPlayerID(0, lobby.FileProgressFlagsBytes()))
	d.reliability.SendReliable(addr, TagAbilityProgress, prependPlayerID(0, lobby.AbilityProgressBytes()))
	d.reliability.SendReliable(addr, TagHoneycombScore, prependPlayerID(0, lobby.HoneycombScoreBytes()))
	d.reliability.SendReliable(addr, TagMumboScore, prependPlayerID(0, lobby.MumboScoreBytes()))

	for _, j := range lobby.Jiggies() {
		d.reliability.SendReliable(addr, TagJiggyCollected, EncodeJiggyCollectedOut(0, j.LevelID, j.JiggyID))
	}
	for _, h := range lobby.Honeycombs() {
		d.reliability.SendReliable(addr, TagHoneycombCollected, EncodeHoneycombOrMumboOut(0, HoneycombOrMumboIn{MapID: h.MapID, ID: h.ItemID, X: h.X, Y: h.Y, Z: h.Z}))
	}
	for _, m := range lobby.MumboTokens() {
		d.reliability.SendReliable(addr, TagMumboTokenCollected, EncodeHoneycombOrMumboOut(0, HoneycombOrMumboIn{MapID: m.MapID, ID: m.ItemID, X: m.X, Y: m.Y, Z: m.Z}))
	}
	for _, o := range lobby.OpenedLevels() {
		d.reliability.SendReliable(addr, TagLevelOpened, EncodeLevelOpenedOut(0, o.WorldID, o.JiggyCost))
	}
}

// --- Broadcast fan-out ------------------------------------------------------

// broadcastToLobbyExcept fans a message out to every lobby member other
// than exceptID. The target address list is gathered from the lobby's
// roster snapshot, then sends happen with no lock held, and the backing
// slice is pooled to cut allocation churn on busy lobbies.
func (d *Dispatcher) broadcastToLobbyExcept(lobby *Lobby, exceptID uint32, tag Tag, body []byte, reliable bool) {
	targetsPtr := d.targetPool.Get().(*[]netip.AddrPort)
	targets := (*targetsPtr)[:0]
	defer func() {
		*targetsPtr = targets[:0]
		d.targetPool.Put(targetsPtr)
	}()

	for _, member := range lobby.Players() {
		if member.ID == exceptID {
			continue
		}
		if p, ok := d.players.GetByID(member.ID); ok {
			targets = append(targets, p.Address)
		}
	}

	for _, addr := range targets {
		if reliable {
			d.reliability.SendReliable(addr, tag, body)
		} else {
			d.send(addr, Encode(tag, body))
		}
	}
}

func prependPlayerID(playerID uint32, body []byte) []byte {
	out := make([]byte, 4+len(body))
	putBE32(out[0:4], playerID)
	copy(out[4:], body)
	return out
}
