package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Tag is the one-byte type tag that leads every UDP datagram.
type Tag byte

// Type tags. Ordinals are part of the wire contract and must never change.
const (
	TagHandshake               Tag = 1
	TagPlayerConnected         Tag = 3
	TagPlayerDisconnected      Tag = 4
	TagPing                    Tag = 5
	TagPong                    Tag = 6
	TagFullSyncRequest         Tag = 10
	TagNoteSaveData            Tag = 11
	TagInitialSaveDataRequest  Tag = 12
	TagFileProgressFlags       Tag = 13
	TagAbilityProgress         Tag = 14
	TagHoneycombScore          Tag = 15
	TagMumboScore              Tag = 16
	TagHoneycombCollected      Tag = 17
	TagMumboTokenCollected     Tag = 18
	TagPuppetUpdate            Tag = 20
	TagPuppetSyncRequest       Tag = 21
	TagJiggyCollected          Tag = 51
	TagNoteCollected           Tag = 52
	TagNoteCollectedPos        Tag = 53
	TagLevelOpened             Tag = 54
	TagReliableAck             Tag = 60
)

// ErrMalformedPayload is returned whenever a datagram body is shorter than
// its kind requires, or a length-prefixed string overruns the buffer or is
// not valid UTF-8.
var ErrMalformedPayload = errors.New("malformed payload")

// HandshakeBody carries the three fields of a client login.
type HandshakeBody struct {
	LobbyName string
	Password  string
	Username  string
}

// DecodeHandshake parses three big-endian-length-prefixed UTF-8 strings.
func DecodeHandshake(body []byte) (HandshakeBody, error) {
	var h HandshakeBody
	rest := body
	var err error
	if h.LobbyName, rest, err = readLPString(rest); err != nil {
		return h, err
	}
	if h.Password, rest, err = readLPString(rest); err != nil {
		return h, err
	}
	if h.Username, _, err = readLPString(rest); err != nil {
		return h, err
	}
	return h, nil
}

// EncodeHandshake builds the wire body a client sends to log into a lobby.
// The server itself only ever decodes a Handshake; this exists for the
// testclient and tests.
func EncodeHandshake(lobbyName, password, username string) []byte {
	out := make([]byte, 0, 12+len(lobbyName)+len(password)+len(username))
	out = appendLPString(out, lobbyName)
	out = appendLPString(out, password)
	out = appendLPString(out, username)
	return out
}

func appendLPString(b []byte, s string) []byte {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(s)))
	b = append(b, lenBuf...)
	b = append(b, s...)
	return b
}

func readLPString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, ErrMalformedPayload
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(n) > uint64(len(b)) {
		return "", nil, ErrMalformedPayload
	}
	s := b[:n]
	if !utf8.Valid(s) {
		return "", nil, ErrMalformedPayload
	}
	return string(s), b[n:], nil
}

// JiggyCollectedIn is the client→server body for JiggyCollected.
type JiggyCollectedIn struct {
	JiggyEnumID    int32
	CollectedValue int32
}

func DecodeJiggyCollectedIn(body []byte) (JiggyCollectedIn, error) {
	if len(body) < 8 {
		return JiggyCollectedIn{}, ErrMalformedPayload
	}
	return JiggyCollectedIn{
		JiggyEnumID:    int32(binary.LittleEndian.Uint32(body[0:4])),
		CollectedValue: int32(binary.LittleEndian.Uint32(body[4:8])),
	}, nil
}

// EncodeJiggyCollectedOut builds the S→C broadcast body:
// player_id BE u32 + jiggy_enum_id BE i32 + collected_value BE i32.
func EncodeJiggyCollectedOut(playerID uint32, jiggyEnumID, collectedValue int32) []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[0:4], playerID)
	binary.BigEndian.PutUint32(out[4:8], uint32(jiggyEnumID))
	binary.BigEndian.PutUint32(out[8:12], uint32(collectedValue))
	return out
}

// NoteCollectedIn is the client→server body for NoteCollected.
type NoteCollectedIn struct {
	MapID     int32
	LevelID   int32
	IsDynamic bool
	NoteIndex int32
}

func DecodeNoteCollectedIn(body []byte) (NoteCollectedIn, error) {
	if len(body) < 13 {
		return NoteCollectedIn{}, ErrMalformedPayload
	}
	return NoteCollectedIn{
		MapID:     int32(binary.LittleEndian.Uint32(body[0:4])),
		LevelID:   int32(binary.LittleEndian.Uint32(body[4:8])),
		IsDynamic: body[8] != 0,
		NoteIndex: int32(binary.LittleEndian.Uint32(body[9:13])),
	}, nil
}

// NoteCollectedPosIn is the client→server body for NoteCollectedPos.
type NoteCollectedPosIn struct {
	MapID   int32
	X, Y, Z int16
}

func DecodeNoteCollectedPosIn(body []byte) (NoteCollectedPosIn, error) {
	if len(body) < 10 {
		return NoteCollectedPosIn{}, ErrMalformedPayload
	}
	return NoteCollectedPosIn{
		MapID: int32(binary.LittleEndian.Uint32(body[0:4])),
		X:     int16(binary.LittleEndian.Uint16(body[4:6])),
		Y:     int16(binary.LittleEndian.Uint16(body[6:8])),
		Z:     int16(binary.LittleEndian.Uint16(body[8:10])),
	}, nil
}

// HoneycombOrMumboIn is the shared client→server body for HoneycombCollected
// and MumboTokenCollected: five little-endian i32 fields.
type HoneycombOrMumboIn struct {
	MapID, ID, X, Y, Z int32
}

func DecodeHoneycombOrMumboIn(body []byte) (HoneycombOrMumboIn, error) {
	if len(body) < 20 {
		return HoneycombOrMumboIn{}, ErrMalformedPayload
	}
	read := func(i int) int32 { return int32(binary.LittleEndian.Uint32(body[i : i+4])) }
	return HoneycombOrMumboIn{
		MapID: read(0),
		ID:    read(4),
		X:     read(8),
		Y:     read(12),
		Z:     read(16),
	}, nil
}

// EncodeHoneycombOrMumboOut widens to big-endian and prepends player_id.
func EncodeHoneycombOrMumboOut(playerID uint32, v HoneycombOrMumboIn) []byte {
	out := make([]byte, 24)
	binary.BigEndian.PutUint32(out[0:4], playerID)
	binary.BigEndian.PutUint32(out[4:8], uint32(v.MapID))
	binary.BigEndian.PutUint32(out[8:12], uint32(v.ID))
	binary.BigEndian.PutUint32(out[12:16], uint32(v.X))
	binary.BigEndian.PutUint32(out[16:20], uint32(v.Y))
	binary.BigEndian.PutUint32(out[20:24], uint32(v.Z))
	return out
}

// LevelOpenedIn is the client→server body for LevelOpened: two little-endian
// i32 fields, worldID and jiggyCost.
type LevelOpenedIn struct {
	WorldID   int32
	JiggyCost int32
}

func DecodeLevelOpenedIn(body []byte) (LevelOpenedIn, error) {
	if len(body) < 8 {
		return LevelOpenedIn{}, ErrMalformedPayload
	}
	return LevelOpenedIn{
		WorldID:   int32(binary.LittleEndian.Uint32(body[0:4])),
		JiggyCost: int32(binary.LittleEndian.Uint32(body[4:8])),
	}, nil
}

// EncodeLevelOpenedOut: player_id BE u32 + worldID BE i32 + jiggyCost BE i32.
func EncodeLevelOpenedOut(playerID uint32, worldID, jiggyCost int32) []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[0:4], playerID)
	binary.BigEndian.PutUint32(out[4:8], uint32(worldID))
	binary.BigEndian.PutUint32(out[8:12], uint32(jiggyCost))
	return out
}

// NoteSaveDataBody is both the client→server and server→client body:
// level_index LE i32 + 32 raw bytes.
type NoteSaveDataBody struct {
	LevelIndex int32
	Bytes      [32]byte
}

func DecodeNoteSaveData(body []byte) (NoteSaveDataBody, error) {
	if len(body) < 36 {
		return NoteSaveDataBody{}, ErrMalformedPayload
	}
	var n NoteSaveDataBody
	n.LevelIndex = int32(binary.LittleEndian.Uint32(body[0:4]))
	copy(n.Bytes[:], body[4:36])
	return n, nil
}

func EncodeNoteSaveData(n NoteSaveDataBody) []byte {
	out := make([]byte, 36)
	binary.LittleEndian.PutUint32(out[0:4], uint32(n.LevelIndex))
	copy(out[4:36], n.Bytes[:])
	return out
}

// putBE32 is a small convenience over binary.BigEndian.PutUint32 for the
// big-endian player_id header every server broadcast carries.
func putBE32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

// EncodePresenceEvent builds the shared PlayerConnected/PlayerDisconnected
// broadcast body: player_id BE u32 + length-prefixed (BE u32) UTF-8
// username, following the same length-prefix convention Handshake uses for
// its string fields.
func EncodePresenceEvent(id uint32, username string) []byte {
	out := make([]byte, 4+4+len(username))
	putBE32(out[0:4], id)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(username)))
	copy(out[8:], username)
	return out
}

// encodeNoteCollectedOut widens the legacy NoteCollected fields to
// big-endian and prepends player_id, like every other rebroadcast.
func encodeNoteCollectedOut(playerID uint32, in NoteCollectedIn) []byte {
	out := make([]byte, 4+4+4+1+4)
	putBE32(out[0:4], playerID)
	putBE32(out[4:8], uint32(in.MapID))
	putBE32(out[8:12], uint32(in.LevelID))
	if in.IsDynamic {
		out[12] = 1
	}
	putBE32(out[13:17], uint32(in.NoteIndex))
	return out
}

// encodeNoteCollectedPosOut prepends player_id and widens the 16-bit
// positional fields to 32-bit big-endian in the rebroadcast.
func encodeNoteCollectedPosOut(playerID uint32, in NoteCollectedPosIn) []byte {
	out := make([]byte, 4+4+4+4+4)
	putBE32(out[0:4], playerID)
	putBE32(out[4:8], uint32(in.MapID))
	putBE32(out[8:12], uint32(int32(in.X)))
	putBE32(out[12:16], uint32(int32(in.Y)))
	putBE32(out[16:20], uint32(int32(in.Z)))
	return out
}

// EncodeReliableAck builds a ReliableAck body: seq LE u32.
func EncodeReliableAck(seq uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, seq)
	return out
}

// DecodeReliableAck parses a ReliableAck body.
func DecodeReliableAck(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, ErrMalformedPayload
	}
	return binary.LittleEndian.Uint32(body[:4]), nil
}

// EncodePuppetForward builds the wire body for a relayed PuppetUpdate:
// sender_id LE u32 + opaque payload. Puppet headers stay little-endian;
// only progression broadcasts widen to big-endian.
func EncodePuppetForward(senderID uint32, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], senderID)
	copy(out[4:], payload)
	return out
}

func DecodePuppetForward(body []byte) (uint32, []byte, error) {
	if len(body) < 4 {
		return 0, nil, ErrMalformedPayload
	}
	return binary.LittleEndian.Uint32(body[0:4]), body[4:], nil
}

// Encode prepends the tag byte to body, producing a full datagram.
func Encode(tag Tag, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(tag)
	copy(out[1:], body)
	return out
}

// EncodeReliable prepends tag + seq_le (u32) + body.
func EncodeReliable(tag Tag, seq uint32, body []byte) []byte {
	out := make([]byte, 5+len(body))
	out[0] = byte(tag)
	binary.LittleEndian.PutUint32(out[1:5], seq)
	copy(out[5:], body)
	return out
}

// Split extracts the tag and remaining body from a raw datagram.
func Split(datagram []byte) (Tag, []byte, error) {
	if len(datagram) < 1 {
		return 0, nil, fmt.Errorf("%w: empty datagram", ErrMalformedPayload)
	}
	return Tag(datagram[0]), datagram[1:], nil
}

// SplitReliable extracts the leading little-endian sequence number and the
// remaining body proper from a reliable-kind's body (post type-tag).
func SplitReliable(body []byte) (seq uint32, rest []byte, err error) {
	if len(body) < 4 {
		return 0, nil, fmt.Errorf("%w: short reliable header", ErrMalformedPayload)
	}
	return binary.LittleEndian.Uint32(body[0:4]), body[4:], nil
}
